package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"

	// Frame decoders for the request body.
	_ "image/jpeg"
	_ "image/png"
)

// readFrame extracts the frame from the request body. JSON requests carry a
// base64 image under "image"; anything else is treated as raw image bytes.
func readFrame(r *http.Request) (image.Image, error) {
	var imgBytes []byte
	var err error

	switch r.Header.Get("Content-Type") {
	case "application/json":
		imgBytes, err = readJSONFrame(r)
	default:
		imgBytes, err = io.ReadAll(r.Body)
	}
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func readJSONFrame(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(req.Image)
}
