package hal

import "image/color"

// RGB565 packs an 8-bit-per-channel color into the framebuffer format.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// RGB565Color packs c, ignoring alpha.
func RGB565Color(c color.RGBA) uint16 { return RGB565(c.R, c.G, c.B) }

// RGB888 expands a framebuffer pixel, scaling each channel to the full
// 0-255 range.
func RGB888(p uint16) (r, g, b uint8) {
	r = uint8(uint32(p>>11&0x1F) * 255 / 31)
	g = uint8(uint32(p>>5&0x3F) * 255 / 63)
	b = uint8(uint32(p&0x1F) * 255 / 31)
	return r, g, b
}

// PutPixel stores p at byte offset off of an RGB565 buffer.
func PutPixel(buf []byte, off int, p uint16) {
	buf[off] = byte(p)
	buf[off+1] = byte(p >> 8)
}

// PixelAt loads the RGB565 pixel at byte offset off.
func PixelAt(buf []byte, off int) uint16 {
	return uint16(buf[off]) | uint16(buf[off+1])<<8
}
