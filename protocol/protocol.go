// Package protocol is the JSON request/response exchange between the station
// daemon and its clients over a unix socket. Each message is one JSON value.
package protocol

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"
)

type Action string

const (
	// ActionMark runs one verification session on the station camera.
	ActionMark Action = "MARK"
	// ActionStatus reports whether an identity is marked today.
	ActionStatus Action = "STATUS"
	// ActionReload republishes the model artifact from disk.
	ActionReload Action = "RELOAD"
)

type Req struct {
	Action Action            `json:"action"`
	Params map[string]string `json:"params"`
}

type MarkReq struct {
	Timeout time.Duration
}

type StatusReq struct {
	Identity string
}

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

type Res struct {
	Status Status            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Extras map[string]string `json:"extras,omitempty"`
}

// Extras keys.
const (
	ExtraMarked   = "marked"
	ExtraFrames   = "frames"
	ExtraPresent  = "present"
	ExtraVersion  = "version"
	ExtraIdentity = "identity"
)

// Decoder reads successive messages from one connection.
type Decoder struct {
	dec *json.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

func (d *Decoder) Req() (*Req, error) {
	var req Req
	err := d.dec.Decode(&req)
	return &req, err
}

func (d *Decoder) Res() (*Res, error) {
	var res Res
	err := d.dec.Decode(&res)
	return &res, err
}

func ReadReq(r io.Reader) (*Req, error) { return NewDecoder(r).Req() }

func ReadRes(r io.Reader) (*Res, error) { return NewDecoder(r).Res() }

func ToMarkReq(req *Req) *MarkReq {
	secs, _ := strconv.Atoi(req.Params["timeout"])
	return &MarkReq{Timeout: time.Duration(secs) * time.Second}
}

func ToStatusReq(req *Req) *StatusReq {
	return &StatusReq{Identity: req.Params["identity"]}
}

// WriteMarkReq asks for a session; a zero timeout uses the station default.
func WriteMarkReq(w io.Writer, timeout time.Duration) error {
	req := Req{Action: ActionMark, Params: map[string]string{}}
	if timeout > 0 {
		req.Params["timeout"] = strconv.Itoa(int(timeout / time.Second))
	}
	return json.NewEncoder(w).Encode(&req)
}

func WriteStatusReq(w io.Writer, identity string) error {
	req := Req{
		Action: ActionStatus,
		Params: map[string]string{"identity": identity},
	}
	return json.NewEncoder(w).Encode(&req)
}

func WriteReloadReq(w io.Writer) error {
	return json.NewEncoder(w).Encode(&Req{Action: ActionReload})
}

func WriteSuccessRes(w io.Writer, extras map[string]string) error {
	res := Res{
		Status: StatusSuccess,
		Extras: extras,
	}
	return json.NewEncoder(w).Encode(&res)
}

func WriteErrorRes(w io.Writer, err error) error {
	res := Res{
		Status: StatusError,
		Error:  err.Error(),
	}
	return json.NewEncoder(w).Encode(&res)
}

// JoinIdentities and SplitIdentities carry identity lists in Extras.
func JoinIdentities(ids []string) string { return strings.Join(ids, ",") }

func SplitIdentities(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
