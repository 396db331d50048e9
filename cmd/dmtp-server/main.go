// Command dmtp-server is the OpenDMTP reference server binary: it
// listens on a TCP port, drives one server session per accepted
// connection, and logs decoded events, diagnostics, and client errors.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"

	"github.com/opendmtp/dmtp-go/internal/geozone"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/errtax"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/event"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/packet"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/session/server"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/transport"
)

// severeDecaySweep is how often the background job decrements every
// tracked device's severe-error count by one, a conservative recovery
// path for devices that never close a session cleanly (§4.F
// "Throttling").
const severeDecaySweep = "@every 1h"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dmtp-server", flag.ContinueOnError)
	keepAlive := fs.Bool("keep-alive", false, "hold the session open and poll the client instead of closing on EOB-DONE")
	clientSpeaksFirst := fs.Bool("client-speaks-first", true, "expect the client to send its identification block first")
	uploadFile := fs.String("upload-file", "", "path to write uploaded file chunks to")
	geozoneFile := fs.String("geozone-file", "", "path to the geozone table file, watched for live reload")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dmtp-server [flags] <port>")
		return 1
	}
	port := fs.Arg(0)

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		return 1
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	_ = *uploadFile // collaborator detail: file-upload framing is out of core scope

	var zones *geozone.Table
	if *geozoneFile != "" {
		zones = geozone.New(logger)
		if err := zones.Load(*geozoneFile); err != nil {
			logger.WithError(err).Warn("initial geozone load failed")
		}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		logger.WithError(err).Error("listen failed")
		return 2
	}
	defer ln.Close()
	logger.WithField("addr", ln.Addr()).Info("dmtp-server listening")

	sevTrack := newSevereRegistry()

	c := cron.New()
	if err := c.AddFunc(severeDecaySweep, sevTrack.decayAll); err != nil {
		logger.WithError(err).Error("failed to schedule severe-error decay sweep")
		return 2
	}
	c.Start()
	defer c.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if zones != nil {
		go func() {
			if err := zones.Watch(ctx); err != nil {
				logger.WithError(err).Warn("geozone watcher stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		ln.Close()
	}()

	templates := event.NewRegistry()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return 0
			default:
				logger.WithError(err).Error("accept failed")
				return 2
			}
		}
		go serveConn(ctx, conn, templates, sevTrack, zones, logger, server.Config{
			ClientSpeaksFirst: *clientSpeaksFirst,
			KeepAlive:         *keepAlive,
			ReadTimeout:       60 * time.Second,
			MaxEvents:         10,
			PendingCap:        16,
		})
	}
}

func serveConn(
	ctx context.Context,
	conn net.Conn,
	templates *event.Registry,
	sevTrack *severeRegistry,
	zones *geozone.Table,
	logger logrus.FieldLogger,
	cfg server.Config,
) {
	defer conn.Close()
	tr := transport.NewAcceptedTCP(conn)
	sess := server.NewSession(cfg, tr, templates, logger)

	deviceID := conn.RemoteAddr().String()
	tracker := sevTrack.get(deviceID)

	sess.SetHooks(server.Hooks{
		OnEvent: func(pkt *packet.Packet, rec *event.Record) {
			fields := logrus.Fields{
				"session_id": sess.ID,
				"device":     deviceID,
				"sequence":   rec.Sequence,
			}
			if zones != nil {
				if z, ok := zones.Contains(rec.GPSPoint[0]); ok {
					fields["geozone"] = z.ID
				}
			}
			logger.WithFields(fields).Info("event received")
		},
		OnDiagnostic: func(pkt *packet.Packet) {
			logger.WithField("session_id", sess.ID).Debug("diagnostic received")
		},
		OnError: func(pkt *packet.Packet) {
			tracker.RecordSevereClose()
			logger.WithField("session_id", sess.ID).Warn("client reported an error")
		},
		OnClientInit: func() {
			logger.WithField("session_id", sess.ID).Info("client session initialized")
		},
	})

	if err := sess.Run(ctx); err != nil {
		logger.WithError(err).WithField("session_id", sess.ID).Warn("session ended")
	}
}

// severeRegistry tracks one errtax.SevereTracker per device address,
// decayed on a schedule rather than per clean-close (the server doesn't
// see the client's own close outcome).
type severeRegistry struct {
	mutex    sync.Mutex
	trackers map[string]*errtax.SevereTracker
}

func newSevereRegistry() *severeRegistry {
	return &severeRegistry{trackers: make(map[string]*errtax.SevereTracker)}
}

func (r *severeRegistry) get(deviceID string) *errtax.SevereTracker {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	t, ok := r.trackers[deviceID]
	if !ok {
		t = &errtax.SevereTracker{}
		r.trackers[deviceID] = t
	}
	return t
}

func (r *severeRegistry) decayAll() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, t := range r.trackers {
		t.RecordCleanClose()
	}
}
