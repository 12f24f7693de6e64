// Command rollcalld serves attendance sessions on one camera over a unix
// socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/abihf/rollcall"
	"github.com/abihf/rollcall/config"
	"github.com/abihf/rollcall/internal/wire"
	"github.com/abihf/rollcall/lbph"
	"github.com/abihf/rollcall/logging"
	"github.com/abihf/rollcall/metrics"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/errors"
)

func main() {
	if err := serve(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log, logFile, err := logging.Setup(conf.LogLevel, conf.Station.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()

	if isAlreadyRun(conf.Station.PidFile) {
		return errors.New("already run")
	}

	locator, err := wire.Locator(conf)
	if err != nil {
		return errors.Wrap(err, "Can not initialize face locator")
	}
	attendanceLog, recorder, err := wire.Attendance(ctx, conf, log)
	if err != nil {
		return errors.Wrap(err, "Can not open attendance log")
	}
	defer attendanceLog.Close()

	m := metrics.New()
	station := &rollcall.Station{
		Source:             wire.Source(conf, ""),
		Locator:            locator,
		Model:              lbph.NewHandle(),
		ModelPath:          conf.Model.Path,
		Recorder:           recorder,
		Timeout:            conf.Station.SessionTimeout(),
		StopAfterFirstMark: conf.Attendance.StopAfterFirstMark,
		Metrics:            m,
		Logger:             log,
	}
	// A station without a model still starts; MARK fails until RELOAD.
	station.Reload()

	if err := os.MkdirAll(filepath.Dir(conf.Station.PidFile), 0755); err != nil {
		return errors.Wrap(err, "Can not create pid directory")
	}
	if err := writeLockFile(conf.Station.PidFile); err != nil {
		return errors.Wrap(err, "Can not write pid file")
	}
	defer os.Remove(conf.Station.PidFile)

	if err := os.MkdirAll(filepath.Dir(conf.Station.Socket), 0755); err != nil {
		return errors.Wrap(err, "Can not create socket directory")
	}
	os.Remove(conf.Station.Socket)
	ln, err := net.Listen("unix", conf.Station.Socket)
	if err != nil {
		return errors.Wrap(err, "Listen error")
	}
	defer ln.Close()
	os.Chmod(conf.Station.Socket, 0666)

	srv := newServer(station, log)
	go srv.worker(ctx, conf.Station.CPU)
	go srv.accept(ctx, ln)

	if conf.Station.OpsAddr != "" {
		ops := newOps(station, m)
		go func() {
			if err := ops.Listen(conf.Station.OpsAddr); err != nil {
				log.Error("Ops server stopped", "error", err)
			}
		}()
		defer ops.Shutdown()
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("Station ready", "socket", conf.Station.Socket, "device", conf.Capture.Device)
	for sig := range sigc {
		if sig == syscall.SIGHUP {
			daemon.SdNotify(false, daemon.SdNotifyReloading)
			station.Reload()
			daemon.SdNotify(false, daemon.SdNotifyReady)
			continue
		}
		log.Info("Caught signal: shutting down", "signal", sig.String())
		break
	}
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	// end a running session and let it release the camera before the
	// attendance log closes
	cancel()
	ln.Close()
	srv.wait()
	return nil
}

func isAlreadyRun(path string) bool {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false
	}

	pidStr, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Can not read pid file", "error", err)
		return false
	}
	pid, err := strconv.Atoi(string(pidStr))
	if err != nil {
		slog.Warn("Invalid existing pid file", "error", err)
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return proc.Signal(syscall.Signal(0)) == nil
}

func writeLockFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(f, "%d", os.Getpid())
	return f.Close()
}
