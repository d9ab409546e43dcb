package term

import (
	"bufio"
	"io"
	"unicode/utf8"
)

// Kind classifies a decoded key event.
type Kind int

const (
	// KeyRune is a printable character.
	KeyRune Kind = iota
	// KeyCtrl is a control combination; Rune holds the lowercase letter.
	KeyCtrl
	// KeyAlt is an escape-prefixed letter; Rune holds the letter.
	KeyAlt
	KeyEnter
	KeyTab
	KeyBackspace
	KeyDelete
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyHome
	KeyEnd
	KeyWordLeft
	KeyWordRight
	KeyEsc
)

// Key is one decoded key event.
type Key struct {
	Kind Kind
	Rune rune
}

// Ctrl builds the key event for a control combination.
func Ctrl(r rune) Key { return Key{Kind: KeyCtrl, Rune: r} }

// Alt builds the key event for an alt (meta) combination.
func Alt(r rune) Key { return Key{Kind: KeyAlt, Rune: r} }

// Decoder turns a byte stream into key events. It understands UTF-8
// input and the common xterm-style escape sequences.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r for key decoding.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64)}
}

// Buffered returns the number of undecoded bytes already read from the
// underlying stream.
func (d *Decoder) Buffered() int { return d.r.Buffered() }

// ReadKey blocks until one key event is decoded or the stream errors.
func (d *Decoder) ReadKey() (Key, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return Key{}, err
	}

	switch {
	case b == '\r' || b == '\n':
		return Key{Kind: KeyEnter}, nil
	case b == '\t':
		return Key{Kind: KeyTab}, nil
	case b == 0x7f || b == 0x08: // DEL / Ctrl-H
		return Key{Kind: KeyBackspace}, nil
	case b == 0x1b:
		return d.readEscape()
	case b == 0x1f: // Ctrl-_ (undo)
		return Key{Kind: KeyCtrl, Rune: '_'}, nil
	case b < 0x1b: // remaining C0 controls map to Ctrl-letter
		return Key{Kind: KeyCtrl, Rune: rune(b-1) + 'a'}, nil
	case b < 0x20: // FS/GS/RS have no binding; surface as Esc
		return Key{Kind: KeyEsc}, nil
	case b < utf8.RuneSelf:
		return Key{Kind: KeyRune, Rune: rune(b)}, nil
	default:
		return d.readRune(b)
	}
}

// readRune consumes the remaining bytes of a UTF-8 sequence whose
// leading byte is lead.
func (d *Decoder) readRune(lead byte) (Key, error) {
	buf := []byte{lead}
	for !utf8.FullRune(buf) && len(buf) < utf8.UTFMax {
		b, err := d.r.ReadByte()
		if err != nil {
			return Key{}, err
		}
		buf = append(buf, b)
	}
	r, _ := utf8.DecodeRune(buf)
	if r == utf8.RuneError {
		// Drop malformed input rather than failing the read loop.
		return d.ReadKey()
	}
	return Key{Kind: KeyRune, Rune: r}, nil
}

// readEscape decodes a sequence after a leading ESC byte.
func (d *Decoder) readEscape() (Key, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		// Lone ESC at end of stream.
		return Key{Kind: KeyEsc}, nil
	}

	switch b {
	case '[':
		return d.readCSI()
	case 'O': // SS3, sent by some terminals for arrows and Home/End
		f, err := d.r.ReadByte()
		if err != nil {
			return Key{Kind: KeyEsc}, nil
		}
		return csiFinal(f, ""), nil
	default:
		if b >= 'a' && b <= 'z' {
			return Key{Kind: KeyAlt, Rune: rune(b)}, nil
		}
		if b == 0x7f { // Alt-Backspace
			return Key{Kind: KeyAlt, Rune: '\b'}, nil
		}
		return Key{Kind: KeyEsc}, nil
	}
}

// readCSI reads parameter bytes up to the final byte of a CSI sequence.
func (d *Decoder) readCSI() (Key, error) {
	var params []byte
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return Key{Kind: KeyEsc}, nil
		}
		if b >= 0x40 && b <= 0x7e { // final byte
			return csiFinal(b, string(params)), nil
		}
		params = append(params, b)
		if len(params) > 16 { // runaway sequence
			return Key{Kind: KeyEsc}, nil
		}
	}
}

func csiFinal(final byte, params string) Key {
	switch final {
	case 'A':
		return Key{Kind: KeyUp}
	case 'B':
		return Key{Kind: KeyDown}
	case 'C':
		if params == "1;5" || params == "1;3" { // Ctrl/Alt-Right
			return Key{Kind: KeyWordRight}
		}
		return Key{Kind: KeyRight}
	case 'D':
		if params == "1;5" || params == "1;3" {
			return Key{Kind: KeyWordLeft}
		}
		return Key{Kind: KeyLeft}
	case 'H':
		return Key{Kind: KeyHome}
	case 'F':
		return Key{Kind: KeyEnd}
	case '~':
		switch params {
		case "1", "7":
			return Key{Kind: KeyHome}
		case "3":
			return Key{Kind: KeyDelete}
		case "4", "8":
			return Key{Kind: KeyEnd}
		}
	}
	return Key{Kind: KeyEsc}
}
