package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// maxRead caps a single read so one request cannot hold the bus for long.
const maxRead = 256

// TxRequest is the body of POST /api/tx. Bytes are JSON numbers.
type TxRequest struct {
	Addr  int   `json:"addr"`
	Write []int `json:"write,omitempty"`
	Read  int   `json:"read,omitempty"`
}

// TxResponse carries the bytes read.
type TxResponse struct {
	Read []int `json:"read"`
}

// ScanResponse lists the 7-bit addresses that answered.
type ScanResponse struct {
	Devices []int `json:"devices"`
}

func (h *Handlers) scan(w http.ResponseWriter, r *http.Request) {
	found, err := h.bus.Scan(r.Context())
	if err != nil {
		writeError(w, busError(err))
		return
	}
	resp := ScanResponse{Devices: make([]int, len(found))}
	for i, a := range found {
		resp.Devices[i] = int(a)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) tx(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest("invalid JSON body"))
		return
	}
	if req.Addr < 0 || req.Addr > 0x7f {
		writeError(w, errBadRequest(fmt.Sprintf("addr %d out of range", req.Addr)))
		return
	}
	if req.Read < 0 || req.Read > maxRead {
		writeError(w, errBadRequest(fmt.Sprintf("read must be 0..%d", maxRead)))
		return
	}
	wbuf := make([]byte, len(req.Write))
	for i, v := range req.Write {
		if v < 0 || v > 0xff {
			writeError(w, errBadRequest(fmt.Sprintf("write[%d] = %d is not a byte", i, v)))
			return
		}
		wbuf[i] = byte(v)
	}

	rbuf := make([]byte, req.Read)
	if err := h.bus.Tx(r.Context(), uint8(req.Addr), wbuf, rbuf); err != nil {
		writeError(w, busError(err))
		return
	}
	resp := TxResponse{Read: make([]int, len(rbuf))}
	for i, b := range rbuf {
		resp.Read[i] = int(b)
	}
	writeJSON(w, http.StatusOK, resp)
}
