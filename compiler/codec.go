package compiler

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Compiled script images (.kesc)
//
// An image is a canonical CBOR encoding of a parsed program. Each AST node
// is flattened into a wireNode tagged by Kind; the fingerprint is the
// SHA-256 of the encoded statement list, so identical programs produce
// identical images regardless of where they came from.
// ---------------------------------------------------------------------------

// ImageVersion is the current image format version.
const ImageVersion = 1

// ImageMagic prefixes every encoded image.
var ImageMagic = []byte("KESC")

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("compiler: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	// Long arithmetic chains nest one map per operator. Text literals are
	// raw source bytes and need not be valid UTF-8.
	dm, err := cbor.DecOptions{
		MaxNestedLevels: 4096,
		UTF8:            cbor.UTF8DecodeInvalid,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("compiler: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// Image is a decoded compiled script.
type Image struct {
	Version     int
	Fingerprint [32]byte
	Statements  []Stmt
}

type wireImage struct {
	Version     int        `cbor:"1,keyasint"`
	Fingerprint []byte     `cbor:"2,keyasint"`
	Statements  []wireNode `cbor:"3,keyasint"`
}

// wireNode is the flat encoding of any AST node.
type wireNode struct {
	Kind  string     `cbor:"k"`
	Name  string     `cbor:"n,omitempty"`
	Op    string     `cbor:"o,omitempty"`
	Num   int64      `cbor:"i,omitempty"`
	Text  string     `cbor:"t,omitempty"`
	Left  *wireNode  `cbor:"l,omitempty"`
	Right *wireNode  `cbor:"r,omitempty"`
	Items []wireNode `cbor:"e,omitempty"`
	Body  []wireNode `cbor:"b,omitempty"`
}

const (
	kindNumber   = "num"
	kindText     = "text"
	kindVariable = "var"
	kindBinary   = "bin"
	kindCall     = "call"
	kindPressed  = "key"
	kindMake     = "make"
	kindChange   = "change"
	kindSay      = "say"
	kindIf       = "if"
	kindRepeat   = "repeat"
	kindForever  = "forever"
	kindExprStmt = "expr"
)

// Fingerprint returns the content hash of a statement list.
func Fingerprint(stmts []Stmt) ([32]byte, error) {
	data, err := cborEncMode.Marshal(encodeStmts(stmts))
	if err != nil {
		return [32]byte{}, fmt.Errorf("compiler: encode statements: %w", err)
	}
	return sha256.Sum256(data), nil
}

// MarshalImage encodes statements as a compiled image.
func MarshalImage(stmts []Stmt) ([]byte, error) {
	wire := encodeStmts(stmts)
	body, err := cborEncMode.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("compiler: encode statements: %w", err)
	}
	sum := sha256.Sum256(body)
	data, err := cborEncMode.Marshal(wireImage{
		Version:     ImageVersion,
		Fingerprint: sum[:],
		Statements:  wire,
	})
	if err != nil {
		return nil, fmt.Errorf("compiler: encode image: %w", err)
	}
	return append(append([]byte{}, ImageMagic...), data...), nil
}

// IsImage reports whether data starts with the image magic.
func IsImage(data []byte) bool {
	return bytes.HasPrefix(data, ImageMagic)
}

// UnmarshalImage decodes a compiled image and verifies its fingerprint.
func UnmarshalImage(data []byte) (*Image, error) {
	if !IsImage(data) {
		return nil, errors.New("compiler: not a compiled image")
	}
	var w wireImage
	if err := cborDecMode.Unmarshal(data[len(ImageMagic):], &w); err != nil {
		return nil, fmt.Errorf("compiler: unmarshal image: %w", err)
	}
	if w.Version != ImageVersion {
		return nil, fmt.Errorf("compiler: unsupported image version %d", w.Version)
	}
	stmts, err := decodeStmts(w.Statements)
	if err != nil {
		return nil, err
	}
	sum, err := Fingerprint(stmts)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(sum[:], w.Fingerprint) {
		return nil, fmt.Errorf("compiler: fingerprint mismatch: declared %x, computed %x", w.Fingerprint, sum)
	}
	return &Image{Version: w.Version, Fingerprint: sum, Statements: stmts}, nil
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func encodeStmts(stmts []Stmt) []wireNode {
	out := make([]wireNode, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, encodeStmt(s))
	}
	return out
}

func encodeStmt(s Stmt) wireNode {
	switch n := s.(type) {
	case *Make:
		w := wireNode{Kind: kindMake, Name: n.Name, Body: encodeStmts(n.Body)}
		if n.Value != nil {
			v := encodeExpr(n.Value)
			w.Left = &v
		}
		return w
	case *Change:
		v := encodeExpr(n.Value)
		return wireNode{Kind: kindChange, Name: n.Name, Left: &v}
	case *Say:
		items := make([]wireNode, 0, len(n.Values))
		for _, e := range n.Values {
			items = append(items, encodeExpr(e))
		}
		return wireNode{Kind: kindSay, Items: items}
	case *If:
		c := encodeExpr(n.Cond)
		return wireNode{Kind: kindIf, Left: &c, Body: encodeStmts(n.Body)}
	case *Repeat:
		c := encodeExpr(n.Count)
		return wireNode{Kind: kindRepeat, Left: &c, Body: encodeStmts(n.Body)}
	case *Forever:
		return wireNode{Kind: kindForever, Body: encodeStmts(n.Body)}
	case *ExprStmt:
		e := encodeExpr(n.Expr)
		return wireNode{Kind: kindExprStmt, Left: &e}
	}
	panic(fmt.Sprintf("compiler: cannot encode statement %T", s))
}

func encodeExpr(e Expr) wireNode {
	switch n := e.(type) {
	case *NumberLiteral:
		return wireNode{Kind: kindNumber, Num: n.Value}
	case *TextLiteral:
		return wireNode{Kind: kindText, Text: n.Value}
	case *Variable:
		return wireNode{Kind: kindVariable, Name: n.Name}
	case *Call:
		return wireNode{Kind: kindCall, Name: n.Name}
	case *KeyPressed:
		return wireNode{Kind: kindPressed, Text: n.Key}
	case *BinaryOp:
		l, r := encodeExpr(n.Left), encodeExpr(n.Right)
		return wireNode{Kind: kindBinary, Op: n.Op, Left: &l, Right: &r}
	}
	panic(fmt.Sprintf("compiler: cannot encode expression %T", e))
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

func decodeStmts(ws []wireNode) ([]Stmt, error) {
	if len(ws) == 0 {
		return nil, nil
	}
	out := make([]Stmt, 0, len(ws))
	for i := range ws {
		s, err := decodeStmt(&ws[i])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeStmt(w *wireNode) (Stmt, error) {
	switch w.Kind {
	case kindMake:
		body, err := decodeStmts(w.Body)
		if err != nil {
			return nil, err
		}
		m := &Make{Name: w.Name, Body: body}
		if w.Left != nil {
			if m.Value, err = decodeExpr(w.Left); err != nil {
				return nil, err
			}
		}
		return m, nil
	case kindChange:
		v, err := decodeExpr(w.Left)
		if err != nil {
			return nil, err
		}
		return &Change{Name: w.Name, Value: v}, nil
	case kindSay:
		values := make([]Expr, 0, len(w.Items))
		for i := range w.Items {
			v, err := decodeExpr(&w.Items[i])
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return &Say{Values: values}, nil
	case kindIf, kindRepeat:
		c, err := decodeExpr(w.Left)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmts(w.Body)
		if err != nil {
			return nil, err
		}
		if w.Kind == kindIf {
			return &If{Cond: c, Body: body}, nil
		}
		return &Repeat{Count: c, Body: body}, nil
	case kindForever:
		body, err := decodeStmts(w.Body)
		if err != nil {
			return nil, err
		}
		return &Forever{Body: body}, nil
	case kindExprStmt:
		e, err := decodeExpr(w.Left)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{Expr: e}, nil
	}
	return nil, fmt.Errorf("compiler: unknown statement kind %q", w.Kind)
}

func decodeExpr(w *wireNode) (Expr, error) {
	if w == nil {
		return nil, errors.New("compiler: missing expression")
	}
	switch w.Kind {
	case kindNumber:
		return &NumberLiteral{Value: w.Num}, nil
	case kindText:
		return &TextLiteral{Value: w.Text}, nil
	case kindVariable:
		return &Variable{Name: w.Name}, nil
	case kindCall:
		return &Call{Name: w.Name}, nil
	case kindPressed:
		return &KeyPressed{Key: w.Text}, nil
	case kindBinary:
		l, err := decodeExpr(w.Left)
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(w.Right)
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Left: l, Op: w.Op, Right: r}, nil
	}
	return nil, fmt.Errorf("compiler: unknown expression kind %q", w.Kind)
}
