// Package cardpng writes and reads character cards embedded in PNG images
// using the chara_card_v2 convention: a tEXt chunk keyed "chara" whose value
// is the base64-encoded card JSON.
package cardpng

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"

	"github.com/loreforge/loreforge/internal/models"
)

const (
	imageWidth  = 600
	imageHeight = 900

	charaKeyword = "chara"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ErrNoCharaChunk is returned by Decode when the PNG carries no card data.
var ErrNoCharaChunk = errors.New("png has no chara chunk")

// CardData is the chara_card_v2 payload body.
type CardData struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Personality string `json:"personality"`
	Scenario    string `json:"scenario"`
	FirstMes    string `json:"first_mes"`
	MesExample  string `json:"mes_example"`
}

// Card is the chara_card_v2 envelope.
type Card struct {
	Spec        string   `json:"spec"`
	SpecVersion string   `json:"spec_version"`
	Data        CardData `json:"data"`
}

// FromModel maps a stored card onto the chara_card_v2 envelope.
func FromModel(c *models.CharacterCard) Card {
	return Card{
		Spec:        "chara_card_v2",
		SpecVersion: "2.0",
		Data: CardData{
			Name:        c.Name,
			Description: c.Description,
			Personality: c.Persona,
			Scenario:    c.Scenario,
			FirstMes:    c.FirstMessage,
			MesExample:  c.ExampleMessages,
		},
	}
}

// Encode renders the card as a 600x900 opaque PNG with the chara tEXt chunk
// inserted before IEND.
func Encode(c *models.CharacterCard) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, imageWidth, imageHeight))
	bg := color.RGBA{R: 0x2b, G: 0x2d, B: 0x42, A: 0xff}
	for y := 0; y < imageHeight; y++ {
		for x := 0; x < imageWidth; x++ {
			img.SetRGBA(x, y, bg)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}

	payload, err := json.Marshal(FromModel(c))
	if err != nil {
		return nil, fmt.Errorf("failed to encode card json: %w", err)
	}
	chunk := textChunk(charaKeyword, base64.StdEncoding.EncodeToString(payload))

	return insertBeforeIEND(buf.Bytes(), chunk)
}

// Decode extracts the embedded card from a PNG produced by Encode or by any
// chara_card_v2 compatible tool.
func Decode(data []byte) (*Card, error) {
	value, err := findTextChunk(data, charaKeyword)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("chara chunk is not valid base64: %w", err)
	}
	var card Card
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil, fmt.Errorf("chara chunk is not valid card json: %w", err)
	}
	return &card, nil
}

// textChunk builds a complete tEXt chunk: length, type, keyword NUL text, crc.
func textChunk(keyword, text string) []byte {
	body := make([]byte, 0, len(keyword)+1+len(text))
	body = append(body, keyword...)
	body = append(body, 0)
	body = append(body, text...)

	chunk := make([]byte, 0, 12+len(body))
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(body)))
	chunk = append(chunk, "tEXt"...)
	chunk = append(chunk, body...)

	crc := crc32.NewIEEE()
	crc.Write([]byte("tEXt"))
	crc.Write(body)
	chunk = binary.BigEndian.AppendUint32(chunk, crc.Sum32())
	return chunk
}

// insertBeforeIEND splices a chunk in front of the trailing IEND chunk.
func insertBeforeIEND(data, chunk []byte) ([]byte, error) {
	offset, err := findChunk(data, "IEND")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:offset]...)
	out = append(out, chunk...)
	out = append(out, data[offset:]...)
	return out, nil
}

// findChunk returns the byte offset of the first chunk of the given type.
func findChunk(data []byte, chunkType string) (int, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return 0, errors.New("not a png")
	}
	offset := len(pngSignature)
	for offset+12 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		ctype := string(data[offset+4 : offset+8])
		if ctype == chunkType {
			return offset, nil
		}
		offset += 12 + length
	}
	return 0, fmt.Errorf("png has no %s chunk", chunkType)
}

// findTextChunk scans for a tEXt chunk with the given keyword.
func findTextChunk(data []byte, keyword string) (string, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return "", errors.New("not a png")
	}
	offset := len(pngSignature)
	for offset+12 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		ctype := string(data[offset+4 : offset+8])
		if ctype == "tEXt" && offset+8+length <= len(data) {
			body := data[offset+8 : offset+8+length]
			if i := bytes.IndexByte(body, 0); i >= 0 && string(body[:i]) == keyword {
				return string(body[i+1:]), nil
			}
		}
		offset += 12 + length
	}
	return "", ErrNoCharaChunk
}
