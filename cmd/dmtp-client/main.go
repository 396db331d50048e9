// Command dmtp-client is the OpenDMTP reference client binary: a
// simulated device that generates periodic GPS fixed-format events and
// runs them through the client duplex session state machine against a
// configured server address.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opendmtp/dmtp-go/internal/gpsreceiver"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/bin"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/errtax"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/event"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/gpsenc"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/packet"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/property"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/queue"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/session/client"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/transport"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dmtp-client", flag.ContinueOnError)
	server := fs.String("server", "127.0.0.1:31000", "server host:port to dial")
	uniqueID := fs.String("unique-id", "", "device unique ID sent on identification")
	accountID := fs.String("account-id", "demo", "account ID sent when unique ID identification fails")
	deviceID := fs.String("device-id", "sim-1", "device ID sent when unique ID identification fails")
	propFile := fs.String("property-file", "", "path to a YAML property-store file (optional)")
	intervalSec := fs.Int("interval", 10, "seconds between simulated fixes")
	speedKPH := fs.Float64("speed-kph", 55, "simulated speed over ground")
	headingDeg := fs.Float64("heading-deg", 90, "simulated heading")
	originLat := fs.Float64("origin-lat", 37.7749, "simulated track origin latitude")
	originLon := fs.Float64("origin-lon", -122.4194, "simulated track origin longitude")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		return 1
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var props *property.Store
	if *propFile != "" {
		props, err = property.Open(*propFile)
		if err != nil {
			logger.WithError(err).Error("failed to open property file")
			return 2
		}
	} else {
		props = property.New()
	}

	templates := event.NewRegistry()
	pending := queue.New(queue.RolePending, 16, false, true)
	volatile := queue.New(queue.RoleVolatile, 16, false, true)
	events := queue.New(queue.RoleEvent, 64, true, true)
	severe := &errtax.SevereTracker{}

	cfg := client.Config{
		ProtocolIndex:     0,
		ClientSpeaksFirst: true,
		MaxEventsSimplex:  1,
		MaxEventsDuplex:   10,
		SupportsDuplex:    true,
		Encoding:          packet.EncodingBinary,
		ReadTimeout:       10 * time.Second,
		UniqueID:          *uniqueID,
		AccountID:         *accountID,
		DeviceID:          *deviceID,
	}

	tr := transport.NewTCP(*server)
	sess := client.NewSession(cfg, tr, props, templates, pending, volatile, events, severe, logger)

	sim := gpsreceiver.NewSimulated(gpsenc.Point{Latitude: *originLat, Longitude: *originLon}, *speedKPH, *headingDeg, 0)
	if err := sim.Connect(context.Background()); err != nil {
		logger.WithError(err).Error("failed to start simulated GPS source")
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	ticker := time.NewTicker(time.Duration(*intervalSec) * time.Second)
	defer ticker.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
			if err := enqueueFix(sim, templates, events, &seq); err != nil {
				logger.WithError(err).Warn("failed to enqueue simulated fix")
				continue
			}
			if err := sess.RunDuplex(ctx); err != nil {
				logger.WithError(err).Warn("duplex session ended with error")
			}
		}
	}
}

// enqueueFix pulls one fix from sim, encodes it against the standard-
// resolution template, and appends it to the event queue.
func enqueueFix(sim *gpsreceiver.Simulated, templates *event.Registry, events *queue.Queue, seq *uint32) error {
	fix, err := sim.Fix(context.Background())
	if err != nil {
		return err
	}

	rec := event.New()
	rec.Timestamp[0] = fix.Time.Unix()
	rec.GPSPoint[0] = fix.Point
	rec.SpeedKPH = fix.SpeedKPH
	rec.Heading = fix.HeadingDeg
	rec.AltitudeM = fix.AltitudeM
	rec.Sequence = *seq
	*seq++

	tmpl := templates.Lookup(packet.TypeClientFixedFmtStd)
	p, err := packet.Build(packet.OriginClient, packet.TypeClientFixedFmtStd, func(w *bin.Writer) error {
		return event.Encode(w, rec, tmpl)
	})
	if err != nil {
		return err
	}
	p.Sequence = rec.Sequence
	p.SeqLen = 1
	return events.Add(p)
}
