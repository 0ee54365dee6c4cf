package subtitle

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"time"
)

// PGS segment types.
const (
	segPalette     = 0x14
	segObject      = 0x15
	segComposition = 0x16
	segWindow      = 0x17
	segEnd         = 0x80
)

const (
	odsFirst = 0x80
	odsLast  = 0x40
)

// DisplaySet is one rendered PGS screen.
type DisplaySet struct {
	Start time.Duration
	Image *image.RGBA
}

type pgsObject struct {
	width, height int
	data          []byte
}

type compositionObject struct {
	id   uint16
	x, y int
}

type displayState struct {
	pts     uint32
	width   int
	height  int
	objects []compositionObject
	palette map[uint8]color.NRGBA
	bitmaps map[uint16]*pgsObject
}

// DecodePGS reads a .sup stream and renders every display set that shows
// something. Pixels are composited over black, cropped to the union of the
// visible objects.
func DecodePGS(r io.Reader) ([]DisplaySet, error) {
	br := bufio.NewReader(r)
	var (
		out      []DisplaySet
		state    = newDisplayState()
		palettes = make(map[uint8]map[uint8]color.NRGBA)
		paletteI uint8
	)

	for {
		var header [13]byte
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("failed to read PGS segment header: %w", err)
		}
		if header[0] != 'P' || header[1] != 'G' {
			return out, fmt.Errorf("invalid PGS magic %q", header[:2])
		}
		pts := binary.BigEndian.Uint32(header[2:6])
		kind := header[10]
		size := binary.BigEndian.Uint16(header[11:13])

		body := make([]byte, size)
		if _, err := io.ReadFull(br, body); err != nil {
			return out, fmt.Errorf("failed to read PGS segment body: %w", err)
		}

		switch kind {
		case segComposition:
			if err := state.readComposition(pts, body, &paletteI); err != nil {
				return out, err
			}
		case segWindow:
			// window geometry is implied by object placement
		case segPalette:
			id, entries, err := readPalette(body)
			if err != nil {
				return out, err
			}
			if palettes[id] == nil {
				palettes[id] = make(map[uint8]color.NRGBA)
			}
			for k, v := range entries {
				palettes[id][k] = v
			}
		case segObject:
			if err := state.readObject(body); err != nil {
				return out, err
			}
		case segEnd:
			state.palette = palettes[paletteI]
			if img := state.render(); img != nil {
				out = append(out, DisplaySet{
					Start: time.Duration(state.pts) * time.Second / 90000,
					Image: img,
				})
			}
			state.objects = nil
		default:
			return out, fmt.Errorf("unknown PGS segment type 0x%02x", kind)
		}
	}
}

func newDisplayState() *displayState {
	return &displayState{bitmaps: make(map[uint16]*pgsObject)}
}

func (s *displayState) readComposition(pts uint32, b []byte, paletteID *uint8) error {
	if len(b) < 11 {
		return fmt.Errorf("short PGS composition segment (%d bytes)", len(b))
	}
	s.pts = pts
	s.width = int(binary.BigEndian.Uint16(b[0:2]))
	s.height = int(binary.BigEndian.Uint16(b[2:4]))
	*paletteID = b[9]
	count := int(b[10])

	s.objects = s.objects[:0]
	off := 11
	for i := 0; i < count; i++ {
		if len(b) < off+8 {
			return errors.New("truncated PGS composition object")
		}
		obj := compositionObject{
			id: binary.BigEndian.Uint16(b[off : off+2]),
			x:  int(binary.BigEndian.Uint16(b[off+4 : off+6])),
			y:  int(binary.BigEndian.Uint16(b[off+6 : off+8])),
		}
		cropped := b[off+3]&0x40 != 0
		off += 8
		if cropped {
			off += 8
		}
		s.objects = append(s.objects, obj)
	}
	return nil
}

func readPalette(b []byte) (uint8, map[uint8]color.NRGBA, error) {
	if len(b) < 2 || (len(b)-2)%5 != 0 {
		return 0, nil, fmt.Errorf("malformed PGS palette segment (%d bytes)", len(b))
	}
	entries := make(map[uint8]color.NRGBA, (len(b)-2)/5)
	for off := 2; off < len(b); off += 5 {
		y, cr, cb, a := b[off+1], b[off+2], b[off+3], b[off+4]
		r, g, bl := color.YCbCrToRGB(y, cb, cr)
		entries[b[off]] = color.NRGBA{R: r, G: g, B: bl, A: a}
	}
	return b[0], entries, nil
}

func (s *displayState) readObject(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("short PGS object segment (%d bytes)", len(b))
	}
	id := binary.BigEndian.Uint16(b[0:2])
	seq := b[3]
	rest := b[4:]

	if seq&odsFirst != 0 {
		if len(rest) < 7 {
			return errors.New("truncated PGS object header")
		}
		s.bitmaps[id] = &pgsObject{
			width:  int(binary.BigEndian.Uint16(rest[3:5])),
			height: int(binary.BigEndian.Uint16(rest[5:7])),
			data:   append([]byte(nil), rest[7:]...),
		}
		return nil
	}

	obj, ok := s.bitmaps[id]
	if !ok {
		return fmt.Errorf("PGS object %d continued before it started", id)
	}
	obj.data = append(obj.data, rest...)
	return nil
}

// render draws the current composition, or returns nil when it is empty.
func (s *displayState) render() *image.RGBA {
	var bounds image.Rectangle
	type placed struct {
		obj  *pgsObject
		rect image.Rectangle
	}
	var items []placed
	for _, c := range s.objects {
		obj, ok := s.bitmaps[c.id]
		if !ok || obj.width == 0 || obj.height == 0 {
			continue
		}
		rect := image.Rect(c.x, c.y, c.x+obj.width, c.y+obj.height)
		items = append(items, placed{obj: obj, rect: rect})
		bounds = bounds.Union(rect)
	}
	if len(items) == 0 {
		return nil
	}

	img := image.NewRGBA(bounds)
	for i := range img.Pix {
		if i%4 == 3 {
			img.Pix[i] = 0xff
		}
	}
	for _, it := range items {
		pixels := decodeRLE(it.obj.data, it.obj.width, it.obj.height)
		for py := 0; py < it.obj.height; py++ {
			for px := 0; px < it.obj.width; px++ {
				c := s.palette[pixels[py*it.obj.width+px]]
				a := uint16(c.A)
				img.SetRGBA(it.rect.Min.X+px, it.rect.Min.Y+py, color.RGBA{
					R: uint8(uint16(c.R) * a / 255),
					G: uint8(uint16(c.G) * a / 255),
					B: uint8(uint16(c.B) * a / 255),
					A: 0xff,
				})
			}
		}
	}
	return img
}

// decodeRLE expands PGS run-length data into palette indexes. Short or
// overlong input is clipped to width*height.
func decodeRLE(data []byte, width, height int) []uint8 {
	out := make([]uint8, width*height)
	pos, x, y := 0, 0, 0
	put := func(c uint8, n int) {
		for ; n > 0 && y < height; n-- {
			if x < width {
				out[y*width+x] = c
			}
			x++
		}
	}

	for pos < len(data) && y < height {
		b := data[pos]
		pos++
		if b != 0 {
			put(b, 1)
			continue
		}
		if pos >= len(data) {
			break
		}
		flag := data[pos]
		pos++
		if flag == 0 {
			x = 0
			y++
			continue
		}

		n := int(flag & 0x3f)
		if flag&0x40 != 0 {
			if pos >= len(data) {
				break
			}
			n = n<<8 | int(data[pos])
			pos++
		}
		var c uint8
		if flag&0x80 != 0 {
			if pos >= len(data) {
				break
			}
			c = data[pos]
			pos++
		}
		put(c, n)
	}
	return out
}
