package display

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // decoders for image.Decode
	_ "image/png"
	"os"

	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LoadSplash decodes the image at path and scales it into a width x
// height canvas filled with background (0xRRGGBB). The aspect ratio is
// kept and the image is centered.
func LoadSplash(path string, width, height int, background uint32) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, deverr.New(deverr.KindConfiguration, "load splash", "open splash image", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, deverr.New(deverr.KindConfiguration, "load splash", "decode "+path, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	bg := color.RGBA{R: uint8(background >> 16), G: uint8(background >> 8), B: uint8(background), A: 0xff}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	target := fitRect(src.Bounds(), width, height)
	draw.CatmullRom.Scale(dst, target, src, src.Bounds(), draw.Over, nil)
	return dst, nil
}

// fitRect is the largest rectangle with src's aspect ratio centered in
// width x height.
func fitRect(src image.Rectangle, width, height int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 {
		return image.Rectangle{}
	}
	w, h := width, sh*width/sw
	if h > height {
		w, h = sw*height/sh, height
	}
	x, y := (width-w)/2, (height-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// CreateSplash returns a framebuffer of the mode size showing the image
// at path. The background around a letterboxed image is the test pattern
// color. The framebuffer is created once and reused until it is removed.
func (d *Device) CreateSplash(path string) (*Framebuffer, error) {
	if d.splash != nil {
		return d.splash, nil
	}
	if d.State() == StateClosed || d.State() == StateDeviceOpen {
		return nil, fmt.Errorf("create splash: %w: %s", ErrInvalidState, d.State())
	}

	width, height := uint32(d.chain.Mode.Hdisplay), uint32(d.chain.Mode.Vdisplay)
	img, err := LoadSplash(path, int(width), int(height), d.cfg.Color)
	if err != nil {
		return nil, err
	}
	fb, err := d.createDumbFramebuffer(d.format, width, height, false, func(data []byte, pitch uint32) {
		fillImage(data, pitch, img, d.format)
	})
	if err != nil {
		return nil, err
	}
	d.splash = fb
	d.logger.Info("Created splash", "fb", fb.ID, "image", path, "size", fmt.Sprintf("%dx%d", width, height))
	return fb, nil
}

// fillImage converts img into the buffer row by row, using pitch as the
// row stride. NV12 chroma is the average of each 2x2 block.
func fillImage(data []byte, pitch uint32, img *image.RGBA, format fourcc.Code) {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	p := int(pitch)

	switch {
	case format.Packed32():
		swap := format == fourcc.XB24 || format == fourcc.AB24
		for y := 0; y < height; y++ {
			src := img.Pix[y*img.Stride : y*img.Stride+width*4]
			dst := data[y*p : y*p+width*4]
			for x := 0; x < len(src); x += 4 {
				r, g, b := src[x], src[x+1], src[x+2]
				if swap {
					dst[x], dst[x+1], dst[x+2] = r, g, b
				} else {
					dst[x], dst[x+1], dst[x+2] = b, g, r
				}
				dst[x+3] = 0xff
			}
		}

	case format == fourcc.NV12:
		for y := 0; y < height; y++ {
			src := img.Pix[y*img.Stride:]
			dst := data[y*p : y*p+width]
			for x := range dst {
				luma, _, _ := rgbToYUV(src[x*4], src[x*4+1], src[x*4+2])
				dst[x] = luma
			}
		}
		uvBase := p * height
		for y := 0; y+1 < height; y += 2 {
			row := data[uvBase+(y/2)*p:]
			for x := 0; x+1 < width; x += 2 {
				var r, g, b int
				for _, off := range [4]int{
					y*img.Stride + x*4, y*img.Stride + (x+1)*4,
					(y+1)*img.Stride + x*4, (y+1)*img.Stride + (x+1)*4,
				} {
					r += int(img.Pix[off])
					g += int(img.Pix[off+1])
					b += int(img.Pix[off+2])
				}
				_, u, v := rgbToYUV(byte(r/4), byte(g/4), byte(b/4))
				row[x], row[x+1] = u, v
			}
		}
	}
}
