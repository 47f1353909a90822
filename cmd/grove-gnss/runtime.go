package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"grove-gnss/internal/config"
	"grove-gnss/internal/gps"
	"grove-gnss/internal/indicator"
	"grove-gnss/internal/metrics"
	"grove-gnss/internal/mqttpub"
	"grove-gnss/internal/replay"
	"grove-gnss/internal/udp"
	"grove-gnss/internal/web"
)

// liveRuntime owns the receiver pipeline and every output hanging off it.
type liveRuntime struct {
	cfg config.Config

	// mu guards the output fields below; Outputs is called from web
	// handlers while Close may be running.
	mu          sync.Mutex
	metrics     *metrics.Metrics
	recorder    *replay.Writer
	broadcaster *udp.Broadcaster
	forwarder   *udp.Forwarder
	gpsSvc      *gps.Service
	mqttPub     *mqttpub.Publisher
	ledSvc      *indicator.Service
}

func gpsConfig(c config.GPSConfig) gps.Config {
	return gps.Config{
		Enable:         true,
		Driver:         c.Driver,
		Device:         c.Device,
		Baud:           c.Baud,
		Timeout:        c.Timeout,
		PollInterval:   c.PollInterval,
		Talkers:        c.Talkers,
		VerifyChecksum: c.VerifyChecksum,
		LineQueue:      c.LineQueue,
		GPSDAddr:       c.GPSDAddr,
		Sim: gps.SimConfig{
			CenterLatDeg: c.Sim.CenterLatDeg,
			CenterLonDeg: c.Sim.CenterLonDeg,
			AltM:         c.Sim.AltM,
			GroundKt:     c.Sim.GroundKt,
			RadiusNm:     c.Sim.RadiusNm,
			Period:       c.Sim.Period,
			Rate:         c.Sim.Rate,
		},
		Replay: gps.ReplayConfig{
			Path:  c.Replay.Path,
			Speed: c.Replay.Speed,
			Loop:  c.Replay.Loop,
		},
	}
}

// newLiveRuntime builds and starts the pipeline. Output failures (broker down,
// no GPIO) are logged and leave the rest running; a receiver that cannot be
// opened is logged too so the web status can show why.
func newLiveRuntime(ctx context.Context, cfg config.Config) (*liveRuntime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}
	r := &liveRuntime{cfg: c, metrics: metrics.New()}

	observers := []gps.Observer{r.metrics}
	if c.Forward.Enable {
		b, err := udp.NewBroadcaster(c.Forward.Dest)
		if err != nil {
			return nil, fmt.Errorf("udp forward init failed: %w", err)
		}
		r.broadcaster = b
		r.forwarder = udp.NewForwarder(b)
		observers = append(observers, r.forwarder)
		log.Printf("udp forward dest=%s", c.Forward.Dest)
	}

	gcfg := gpsConfig(c.GPS)
	gcfg.Observers = observers
	if c.Record.Enable {
		w, err := replay.CreateWriter(c.Record.Path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("record init failed: %w", err)
		}
		r.recorder = w
		gcfg.LineTap = func(line string) {
			if err := w.WriteLine(time.Now(), line); err != nil {
				log.Printf("record write failed: %v", err)
			}
		}
		log.Printf("recording lines to %s", c.Record.Path)
	}

	svc, err := gps.New(gcfg)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.gpsSvc = svc
	r.metrics.Watch(svc)
	if err := svc.Start(ctx); err != nil {
		log.Printf("gps start failed: %v", err)
	}

	if c.MQTT.Enable {
		p := mqttpub.New(mqttpub.Config{
			Broker:   c.MQTT.Broker,
			ClientID: c.MQTT.ClientID,
			Topic:    c.MQTT.Topic,
			Interval: c.MQTT.Interval,
			QoS:      byte(c.MQTT.QoS),
			Username: c.MQTT.Username,
			Password: c.MQTT.Password,
		}, svc.Nav())
		if err := p.Start(ctx); err != nil {
			log.Printf("mqtt start failed: %v", err)
		}
		r.mqttPub = p
	}

	if c.Indicator.Enable {
		led := indicator.New(indicator.Config{
			Enable:         true,
			Pin:            c.Indicator.PinNumber(),
			UpdateInterval: c.Indicator.UpdateInterval,
		}, svc.Nav())
		if err := led.Start(ctx); err != nil {
			log.Printf("indicator init failed: %v", err)
		}
		r.ledSvc = led
	}
	return r, nil
}

// Outputs reports the optional outputs for the status page.
func (r *liveRuntime) Outputs() map[string]any {
	out := map[string]any{}
	if r == nil {
		return out
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forwarder != nil {
		out["forward"] = r.forwarder.Snapshot()
	}
	if r.mqttPub != nil {
		out["mqtt"] = r.mqttPub.Snapshot()
	}
	if r.ledSvc != nil {
		out["indicator"] = r.ledSvc.Snapshot()
	}
	if r.recorder != nil {
		out["record"] = map[string]any{"path": r.cfg.Record.Path}
	}
	return out
}

// Handler builds the web handler over this runtime's state.
func (r *liveRuntime) Handler(ctx context.Context, status *web.Status, logs *web.LogBuffer) http.Handler {
	status.SetGPS(r.gpsSvc)
	status.SetOutputs(r.Outputs)

	hub := web.NewNavHub()
	go hub.Run(ctx, r.gpsSvc.Nav(), 200*time.Millisecond)
	return web.Handler(status, r.gpsSvc.Nav(), logs, hub, r.metrics.Handler())
}

// Close stops producers before consumers: the receiver first so no more lines
// reach the recorder or forwarder.
func (r *liveRuntime) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ledSvc != nil {
		r.ledSvc.Close()
		r.ledSvc = nil
	}
	if r.mqttPub != nil {
		r.mqttPub.Close()
		r.mqttPub = nil
	}
	if r.gpsSvc != nil {
		r.gpsSvc.Close()
	}
	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			log.Printf("record close failed: %v", err)
		}
		r.recorder = nil
	}
	if r.broadcaster != nil {
		_ = r.broadcaster.Close()
		r.broadcaster = nil
	}
}
