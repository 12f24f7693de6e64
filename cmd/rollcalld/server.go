package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/abihf/rollcall"
	"github.com/abihf/rollcall/protocol"
	"github.com/abihf/rollcall/utils/thread"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type server struct {
	station *rollcall.Station
	log     *slog.Logger
	jobs    chan job
	// slot is held from handoff until the session result is back.
	slot chan struct{}
	done chan struct{}
}

type job struct {
	ctx     context.Context
	timeout time.Duration
	done    chan jobResult
}

type jobResult struct {
	res rollcall.VerifyResult
	err error
}

func newServer(st *rollcall.Station, log *slog.Logger) *server {
	return &server{
		station: st,
		log:     log,
		jobs:    make(chan job),
		slot:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// worker runs MARK sessions one after another on a thread pinned to cpu
// until ctx is done.
func (s *server) worker(ctx context.Context, cpu int) {
	defer close(s.done)
	if err := thread.Pin(cpu); err != nil {
		s.log.Warn("Capture thread not pinned", "error", err)
	}
	defer thread.Unpin()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			res, err := s.station.Mark(j.ctx, j.timeout)
			j.done <- jobResult{res, err}
		}
	}
}

// wait blocks until the worker has returned.
func (s *server) wait() {
	<-s.done
}

// mark hands a session to the worker, failing fast when one is running.
func (s *server) mark(ctx context.Context, timeout time.Duration) (rollcall.VerifyResult, error) {
	select {
	case s.slot <- struct{}{}:
	default:
		return rollcall.VerifyResult{}, rollcall.ErrStationBusy
	}
	defer func() { <-s.slot }()

	j := job{ctx: ctx, timeout: timeout, done: make(chan jobResult, 1)}
	select {
	case s.jobs <- j:
	case <-ctx.Done():
		return rollcall.VerifyResult{}, ctx.Err()
	}
	r := <-j.done
	return r.res, r.err
}

func (s *server) accept(ctx context.Context, ln net.Listener) {
	for {
		fd, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("Accept error", "error", err)
			return
		}
		go s.handle(ctx, fd)
	}
}

// handle serves one connection. Requests are read on their own goroutine so
// a client hanging up cancels the session it started.
func (s *server) handle(ctx context.Context, c net.Conn) {
	defer c.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reqs := make(chan *protocol.Req)
	go func() {
		defer cancel()
		defer close(reqs)
		dec := protocol.NewDecoder(c)
		for {
			req, err := dec.Req()
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
					s.log.Warn("Can not read request", "error", err)
				}
				return
			}
			select {
			case reqs <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for req := range reqs {
		if err := s.dispatch(ctx, c, req); err != nil {
			s.log.Warn("Can not write response", "error", err)
			return
		}
	}
}

func (s *server) dispatch(ctx context.Context, w io.Writer, req *protocol.Req) error {
	switch req.Action {
	case protocol.ActionMark:
		mark := protocol.ToMarkReq(req)
		log := s.log.With("session", uuid.NewString())
		log.Info("Session started", "timeout", mark.Timeout)
		res, err := s.mark(ctx, mark.Timeout)
		if err != nil {
			log.Warn("Session failed", "error", err)
			return protocol.WriteErrorRes(w, err)
		}
		log.Info("Session finished", "frames", res.Frames, "marked", res.Marked)
		return protocol.WriteSuccessRes(w, map[string]string{
			protocol.ExtraMarked:  protocol.JoinIdentities(res.Marked),
			protocol.ExtraFrames:  strconv.Itoa(res.Frames),
			protocol.ExtraVersion: strconv.FormatUint(res.ModelVersion, 10),
		})

	case protocol.ActionStatus:
		status := protocol.ToStatusReq(req)
		present, err := s.station.Status(ctx, status.Identity)
		if err != nil {
			return protocol.WriteErrorRes(w, err)
		}
		return protocol.WriteSuccessRes(w, map[string]string{
			protocol.ExtraIdentity: status.Identity,
			protocol.ExtraPresent:  strconv.FormatBool(present),
		})

	case protocol.ActionReload:
		v, err := s.station.Reload()
		if err != nil {
			return protocol.WriteErrorRes(w, err)
		}
		return protocol.WriteSuccessRes(w, map[string]string{
			protocol.ExtraVersion: strconv.FormatUint(v.Number, 10),
		})
	}
	return protocol.WriteErrorRes(w, errors.Errorf("unknown action %q", req.Action))
}
