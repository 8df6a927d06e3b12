package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/notevault/internal/codec"
	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/dmitrijs2005/notevault/internal/server/services"
)

// MaxBodySize bounds how much of a request body is read. Raw content is
// limited separately to codec.MaxRawContentSize.
const MaxBodySize = 3 * codec.MaxRawContentSize

type noteUpdateRequest struct {
	Title      *string   `json:"title" validate:"omitempty,min=1,max=255"`
	FolderID   *string   `json:"folderId" validate:"omitempty,min=1"`
	IsFavorite *bool     `json:"isFavorite"`
	Tags       *[]string `json:"tags" validate:"omitempty,dive,max=64"`
	Content    *string   `json:"content"`
	Compressed bool      `json:"_compressed"`
}

type noteCreateRequest struct {
	Title      string  `json:"title" validate:"max=255"`
	FolderID   string  `json:"folderId"`
	Content    *string `json:"content"`
	Compressed bool    `json:"_compressed"`
}

// NoteCreate is a decoded create request.
type NoteCreate struct {
	Title    string
	FolderID string
	Content  *services.ContentInput
}

func readBody(op string, r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxBodySize+1))
	if err != nil {
		return nil, common.E(common.KindValidation, op, err)
	}
	if len(body) > MaxBodySize {
		return nil, common.E(common.KindPayloadTooLarge, op, fmt.Errorf("request body exceeds %d bytes", MaxBodySize))
	}
	return body, nil
}

func decodeStrict(op string, body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return common.E(common.KindValidation, op, fmt.Errorf("malformed JSON: %w", err))
	}
	return nil
}

// contentInput turns the content field into service input. A present but
// null content counts as empty, which clears stored content.
func contentInput(op string, present bool, content *string, compressed bool) (*services.ContentInput, error) {
	if !present {
		return nil, nil
	}
	text := ""
	if content != nil {
		text = *content
	}
	if !compressed && len(text) > codec.MaxRawContentSize {
		return nil, common.E(common.KindPayloadTooLarge, op,
			fmt.Errorf("content exceeds %d bytes", codec.MaxRawContentSize))
	}
	return &services.ContentInput{Text: text, Compressed: compressed}, nil
}

func hasKey(op string, body []byte, key string) (bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false, common.E(common.KindValidation, op, fmt.Errorf("malformed JSON: %w", err))
	}
	_, ok := fields[key]
	return ok, nil
}

// DecodeNoteUpdate parses a note update body. Only the fields present in the
// body are set, and the presence of "content" (not its truthiness) decides
// whether content is replaced.
func DecodeNoteUpdate(r io.Reader) (services.NoteUpdate, error) {
	const op = "api.DecodeNoteUpdate"

	body, err := readBody(op, r)
	if err != nil {
		return services.NoteUpdate{}, err
	}

	var req noteUpdateRequest
	if err := decodeStrict(op, body, &req); err != nil {
		return services.NoteUpdate{}, err
	}
	if err := validateStruct(&req); err != nil {
		return services.NoteUpdate{}, common.E(common.KindValidation, op, err)
	}

	present, err := hasKey(op, body, "content")
	if err != nil {
		return services.NoteUpdate{}, err
	}
	content, err := contentInput(op, present, req.Content, req.Compressed)
	if err != nil {
		return services.NoteUpdate{}, err
	}

	upd := services.NoteUpdate{
		FolderID:   req.FolderID,
		IsFavorite: req.IsFavorite,
		Tags:       req.Tags,
		Content:    content,
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return services.NoteUpdate{}, common.E(common.KindValidation, op, FieldErrors{"title": "must not be blank"})
		}
		upd.Title = &title
	}
	return upd, nil
}

// DecodeNoteCreate parses a note create body. An empty folderId means the
// user's root folder.
func DecodeNoteCreate(r io.Reader) (NoteCreate, error) {
	const op = "api.DecodeNoteCreate"

	body, err := readBody(op, r)
	if err != nil {
		return NoteCreate{}, err
	}

	var req noteCreateRequest
	if err := decodeStrict(op, body, &req); err != nil {
		return NoteCreate{}, err
	}
	if err := validateStruct(&req); err != nil {
		return NoteCreate{}, common.E(common.KindValidation, op, err)
	}

	present, err := hasKey(op, body, "content")
	if err != nil {
		return NoteCreate{}, err
	}
	content, err := contentInput(op, present, req.Content, req.Compressed)
	if err != nil {
		return NoteCreate{}, err
	}
	return NoteCreate{Title: req.Title, FolderID: req.FolderID, Content: content}, nil
}
