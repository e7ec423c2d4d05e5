// Package imaging holds the raster operations behind an avatar render:
// texture decoding, face/helm cropping, compositing, nearest-neighbour
// resizing and PNG encoding.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"sync"

	xdraw "golang.org/x/image/draw"
)

const (
	// TextureSize is the edge length of a modern skin texture.
	TextureSize = 64
	// LegacyTextureHeight is the height of a pre-1.8 64x32 skin.
	LegacyTextureHeight = 32
	// BaseSize is the edge length of an uncached, unscaled avatar.
	BaseSize = 8
)

// Texture regions, in texture coordinates.
var (
	FaceOrigin = image.Pt(8, 8)
	HelmOrigin = image.Pt(40, 8)
)

// ErrTextureSize is returned when a decoded texture is neither 64x64 nor 64x32.
var ErrTextureSize = errors.New("imaging: unsupported texture dimensions")

// DecodeTexture decodes a skin texture into a 64x64 NRGBA raster. Legacy
// 64x32 skins are placed in the top half of a transparent canvas.
func DecodeTexture(data []byte) (*image.NRGBA, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode texture: %w", err)
	}

	b := src.Bounds()
	if b.Dx() != TextureSize || (b.Dy() != TextureSize && b.Dy() != LegacyTextureHeight) {
		return nil, fmt.Errorf("%w: %dx%d", ErrTextureSize, b.Dx(), b.Dy())
	}

	dst := image.NewNRGBA(image.Rect(0, 0, TextureSize, TextureSize))
	copyPix(dst, ToNRGBA(src), image.Point{})
	return dst, nil
}

// Crop copies the size x size square at origin out of src.
func Crop(src *image.NRGBA, origin image.Point, size int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	copyPix(dst, src, src.Bounds().Min.Add(origin))
	return dst
}

// copyPix copies src pixels starting at sp into dst, row by row, without
// any colour-model conversion. Pixels outside src are left untouched.
func copyPix(dst, src *image.NRGBA, sp image.Point) {
	r := dst.Bounds().Intersect(src.Bounds().Sub(sp).Add(dst.Bounds().Min))
	if r.Empty() {
		return
	}
	n := r.Dx() * 4
	for y := r.Min.Y; y < r.Max.Y; y++ {
		di := dst.PixOffset(r.Min.X, y)
		si := src.PixOffset(r.Min.X-dst.Bounds().Min.X+sp.X, y-dst.Bounds().Min.Y+sp.Y)
		copy(dst.Pix[di:di+n], src.Pix[si:si+n])
	}
}

// Overlay composites top onto base at the origin. Pixels with zero alpha in
// top leave base untouched, opaque pixels replace it, and anything in
// between is blended in straight (non-premultiplied) alpha.
func Overlay(base, top *image.NRGBA) {
	r := base.Bounds().Intersect(top.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			ti := top.PixOffset(x, y)
			ta := uint32(top.Pix[ti+3])
			if ta == 0 {
				continue
			}
			bi := base.PixOffset(x, y)
			if ta == 0xff {
				copy(base.Pix[bi:bi+4], top.Pix[ti:ti+4])
				continue
			}
			blend(base.Pix[bi:bi+4], top.Pix[ti:ti+4])
		}
	}
}

func blend(dst, src []uint8) {
	sa := uint32(src[3])
	da := uint32(dst[3])
	// out alpha in [0, 255*255]
	oa := sa*255 + da*(255-sa)
	if oa == 0 {
		return
	}
	for i := 0; i < 3; i++ {
		c := uint32(src[i])*sa*255 + uint32(dst[i])*da*(255-sa)
		dst[i] = uint8((c + oa/2) / oa)
	}
	dst[3] = uint8((oa + 127) / 255)
}

// Compose builds the base avatar from a texture: the face region, with the
// helm region over it when includeHelm is set.
func Compose(texture *image.NRGBA, includeHelm bool) *image.NRGBA {
	face := Crop(texture, FaceOrigin, BaseSize)
	if includeHelm {
		Overlay(face, Crop(texture, HelmOrigin, BaseSize))
	}
	return face
}

// Flatten drops the alpha channel, keeping the stored colour of every pixel.
// The result is opaque and therefore encodes as 8-bit RGB.
func Flatten(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Resize scales src to a size x size square with nearest-neighbour
// sampling. A source that is already that size is returned as a copy.
// NRGBA sources are sampled byte for byte, so translucent and fully
// transparent pixels keep their stored colour.
func Resize(src image.Image, size int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	b := src.Bounds()
	n, ok := src.(*image.NRGBA)
	if !ok {
		xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
		return dst
	}
	if b.Dx() == size && b.Dy() == size {
		copyPix(dst, n, b.Min)
		return dst
	}
	w, h := b.Dx(), b.Dy()
	for y := 0; y < size; y++ {
		sy := b.Min.Y + (2*y+1)*h/(2*size)
		di := dst.PixOffset(0, y)
		for x := 0; x < size; x++ {
			sx := b.Min.X + (2*x+1)*w/(2*size)
			si := n.PixOffset(sx, sy)
			copy(dst.Pix[di:di+4], n.Pix[si:si+4])
			di += 4
		}
	}
	return dst
}

// ToNRGBA converts any decoded image to an NRGBA raster anchored at (0,0).
func ToNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

type bufferPool struct {
	pool sync.Pool
}

func (p *bufferPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *bufferPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}

var encoder = &png.Encoder{
	CompressionLevel: png.BestSpeed,
	BufferPool:       &bufferPool{},
}

// Encode writes img as a PNG using the fastest compression level. Opaque
// images come out as 8-bit RGB, others as 8-bit RGBA.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads a PNG produced by Encode back into an NRGBA raster.
func Decode(data []byte) (*image.NRGBA, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return ToNRGBA(img), nil
}
