package api

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
)

// qrImageSize is the rendered QR PNG edge length in pixels. Large enough
// for a phone camera across a desk.
const qrImageSize = 512

// handleQRImage renders the tenant's pending pairing challenge as a PNG,
// suitable for opening directly in a browser. HEAD requests answer with
// headers only, so pollers can probe for challenge availability cheaply.
func (s *Server) handleQRImage(w http.ResponseWriter, r *http.Request) {
	code, err := s.manager.Challenge(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		writeInternalError(w, "encoding QR image: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	//nolint:errcheck // Best-effort write to response
	w.Write(png)
}

// handleQRJSON returns the pairing challenge as a data URL for clients
// that embed the image rather than link to it.
func (s *Server) handleQRJSON(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")
	code, err := s.manager.Challenge(tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		writeInternalError(w, "encoding QR image: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"tenantId": tenantID,
		"qr":       "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}
