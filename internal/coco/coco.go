// Package coco reads and combines MSCOCO-style caption annotation files.
package coco

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"capset/internal/runstore"
)

var (
	ErrPositionOutOfRange = errors.New("annotation position out of range")
	ErrImageNotFound      = errors.New("image for annotation not found")
)

// Dataset is an MSCOCO captions file. Top-level keys other than images and
// annotations (info, licenses, type, ...) are carried through untouched.
type Dataset struct {
	Images      []Image
	Annotations []Annotation

	extra map[string]json.RawMessage
}

// Image keeps every key of the image record; only the ones capset reads or
// rewrites are decoded.
type Image struct {
	ID       int64
	FileName string
	Width    int
	Height   int

	extra map[string]json.RawMessage
}

// Annotation keeps every key of the annotation record (tokens, bbox, ...).
type Annotation struct {
	ID      int64
	ImageID int64
	Caption string

	extra map[string]json.RawMessage
}

func (ds *Dataset) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	if err := takeField(fields, "images", &ds.Images); err != nil {
		return err
	}
	if err := takeField(fields, "annotations", &ds.Annotations); err != nil {
		return err
	}
	ds.extra = fields
	return nil
}

func (ds Dataset) MarshalJSON() ([]byte, error) {
	out := cloneFields(ds.extra)
	images := ds.Images
	if images == nil {
		images = []Image{}
	}
	annotations := ds.Annotations
	if annotations == nil {
		annotations = []Annotation{}
	}
	if err := putField(out, "images", images); err != nil {
		return nil, err
	}
	if err := putField(out, "annotations", annotations); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (img *Image) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	for key, dst := range map[string]any{
		"id":        &img.ID,
		"file_name": &img.FileName,
		"width":     &img.Width,
		"height":    &img.Height,
	} {
		if err := readField(fields, key, dst); err != nil {
			return fmt.Errorf("image: %w", err)
		}
	}
	img.extra = fields
	return nil
}

func (img Image) MarshalJSON() ([]byte, error) {
	out := cloneFields(img.extra)
	if err := putField(out, "id", img.ID); err != nil {
		return nil, err
	}
	if err := putField(out, "file_name", img.FileName); err != nil {
		return nil, err
	}
	if _, ok := out["width"]; ok || img.Width != 0 {
		if err := putField(out, "width", img.Width); err != nil {
			return nil, err
		}
	}
	if _, ok := out["height"]; ok || img.Height != 0 {
		if err := putField(out, "height", img.Height); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

func (a *Annotation) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	for key, dst := range map[string]any{
		"id":       &a.ID,
		"image_id": &a.ImageID,
		"caption":  &a.Caption,
	} {
		if err := readField(fields, key, dst); err != nil {
			return fmt.Errorf("annotation: %w", err)
		}
	}
	a.extra = fields
	return nil
}

func (a Annotation) MarshalJSON() ([]byte, error) {
	out := cloneFields(a.extra)
	if err := putField(out, "id", a.ID); err != nil {
		return nil, err
	}
	if err := putField(out, "image_id", a.ImageID); err != nil {
		return nil, err
	}
	if err := putField(out, "caption", a.Caption); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	return fields, nil
}

// readField decodes key into dst when present and leaves it in fields.
func readField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return nil
}

// takeField is readField that also removes key from fields.
func takeField(fields map[string]json.RawMessage, key string, dst any) error {
	if err := readField(fields, key, dst); err != nil {
		return err
	}
	delete(fields, key)
	return nil
}

func putField(fields map[string]json.RawMessage, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	fields[key] = raw
	return nil
}

func cloneFields(fields map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(fields)+3)
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func Load(path string) (Dataset, error) {
	var ds Dataset
	if err := runstore.ReadJSON(path, &ds); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

func Save(path string, ds Dataset) error {
	return runstore.WriteJSON(path, ds)
}

// Merge appends second to first. Images of second get fresh ids after the
// largest id in first, their annotations follow them, and every annotation of
// second is renumbered after the largest annotation id in first. Neither
// input is modified; top-level keys besides images and annotations come from
// first, and every record keeps its own extra keys.
func Merge(first, second Dataset) Dataset {
	out := Dataset{
		extra:       cloneFields(first.extra),
		Images:      make([]Image, 0, len(first.Images)+len(second.Images)),
		Annotations: make([]Annotation, 0, len(first.Annotations)+len(second.Annotations)),
	}
	out.Images = append(out.Images, first.Images...)
	out.Annotations = append(out.Annotations, first.Annotations...)

	nextImageID := maxImageID(first.Images) + 1
	remap := make(map[int64]int64, len(second.Images))
	for _, img := range second.Images {
		if _, dup := remap[img.ID]; !dup {
			remap[img.ID] = nextImageID
		}
		img.ID = nextImageID
		nextImageID++
		out.Images = append(out.Images, img)
	}

	nextAnnID := maxAnnotationID(first.Annotations) + 1
	for _, ann := range second.Annotations {
		if id, ok := remap[ann.ImageID]; ok {
			ann.ImageID = id
		}
		ann.ID = nextAnnID
		nextAnnID++
		out.Annotations = append(out.Annotations, ann)
	}
	return out
}

func maxImageID(images []Image) int64 {
	maxID := int64(-1)
	for _, img := range images {
		if img.ID > maxID {
			maxID = img.ID
		}
	}
	return maxID
}

func maxAnnotationID(anns []Annotation) int64 {
	maxID := int64(-1)
	for _, a := range anns {
		if a.ID > maxID {
			maxID = a.ID
		}
	}
	return maxID
}

type LookupResult struct {
	Position   int        `json:"position"`
	Annotation Annotation `json:"annotation"`
	Image      *Image     `json:"image,omitempty"`
	ImagePath  string     `json:"image_path,omitempty"`
	AltCaption string     `json:"alt_caption,omitempty"`
}

// Lookup returns the annotation at position pos with its image record and
// the first of imageDirs that holds the image file. alt, when non-nil, is a
// parallel dataset (e.g. translated captions) read at the same position.
func Lookup(ds Dataset, pos int, imageDirs []string, alt *Dataset) (LookupResult, error) {
	if pos < 0 || pos >= len(ds.Annotations) {
		return LookupResult{}, fmt.Errorf("%w: %d of %d", ErrPositionOutOfRange, pos, len(ds.Annotations))
	}
	res := LookupResult{Position: pos, Annotation: ds.Annotations[pos]}
	if alt != nil && pos < len(alt.Annotations) {
		res.AltCaption = alt.Annotations[pos].Caption
	}

	for i := range ds.Images {
		if ds.Images[i].ID == res.Annotation.ImageID {
			img := ds.Images[i]
			res.Image = &img
			break
		}
	}
	if res.Image == nil {
		return res, fmt.Errorf("%w: image_id %d", ErrImageNotFound, res.Annotation.ImageID)
	}

	for _, dir := range imageDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, res.Image.FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			res.ImagePath = candidate
			break
		}
	}
	return res, nil
}
