// Kernel assembly
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	"fmt"
	"time"

	"plcmotion/pkg/api"
	"plcmotion/pkg/axis"
	"plcmotion/pkg/config"
	"plcmotion/pkg/endstop"
	"plcmotion/pkg/errors"
	"plcmotion/pkg/log"
	"plcmotion/pkg/metrics"
	"plcmotion/pkg/monitor"
	"plcmotion/pkg/reactor"
	"plcmotion/pkg/safety"
	"plcmotion/pkg/scheduler"
	"plcmotion/pkg/servo"
	"plcmotion/pkg/store"
)

// kernel is every component of a running daemon.
type kernel struct {
	cfg      config.Config
	settings *config.AutosaveConfig
	log      *log.Logger

	sched   *scheduler.Scheduler
	reactor *reactor.Reactor
	safety  *safety.Manager
	metrics *metrics.MotionMetrics
	hub     *monitor.Hub
	inputs  *endstop.Bank
	store   *store.Store
	journal *store.Journal
	api     *api.Server
}

// newKernel builds the kernel described by settings. Nothing runs until
// run is called.
func newKernel(settings *config.AutosaveConfig) (*kernel, error) {
	cfg := settings.Config()
	k := &kernel{cfg: cfg, settings: settings, log: log.GetLogger("motiond")}

	k.sched = scheduler.New()
	if err := k.sched.SetFrequency(cfg.Frequency); err != nil {
		return nil, errors.RuntimeErrorInit("scheduler", err)
	}

	k.safety = safety.New()
	k.safety.Configure(safety.Config{WatchdogTimeout: time.Duration(cfg.Watchdog.Timeout * float64(time.Second))})
	k.metrics = metrics.NewMotionMetrics()
	k.reactor = reactor.New(k.sched, reactor.Config{Heartbeat: k.safety, Observer: k.metrics})
	k.hub = monitor.NewHub(k.sched, monitor.Config{RateHz: cfg.Monitor.RateHz, Safety: k.safety, Version: version})

	observers := axis.Observers{k.metrics, k.hub}
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		k.store = st
		k.journal = store.NewJournal(st, 0)
		observers = append(observers, k.journal)
		k.safety.OnShutdown(k.journal.Shutdown)
	}
	k.sched.SetObserver(observers)

	k.inputs = endstop.NewBank("homing")
	if err := k.addAxes(); err != nil {
		k.close()
		return nil, err
	}

	k.safety.RegisterStopper(safety.StopperFunc(k.emergencyStop))
	k.reactor.OnTick(k.hub.Hook())
	k.reactor.OnTick(k.metrics.SampleEvery(k.sched, cfg.Metrics.SampleEvery))

	var auth *api.Auth
	if cfg.API.JWTSecret != "" {
		auth = api.NewAuth(cfg.API.JWTSecret)
	}
	k.api = api.New(api.Config{
		Reactor:  k.reactor,
		Safety:   k.safety,
		Store:    k.store,
		Hub:      k.hub,
		Metrics:  k.metrics,
		Settings: settings,
		Auth:     auth,
	})
	return k, nil
}

func (k *kernel) addAxes() error {
	var homes map[int32]float64
	if k.store != nil {
		var err error
		if homes, err = k.store.HomePositions(); err != nil {
			return err
		}
	}

	for i, ac := range k.cfg.Axes {
		section := fmt.Sprintf("axes[%d]", i)
		dev := servo.NewSim()
		a := k.sched.NewAxis(ac.ID, dev)
		if a == nil {
			return errors.ConfigValidationError(section, "id", errors.CfgAxisIDIllegal)
		}
		a.SetName(ac.Name)

		var signal axis.Signal
		if ac.Homing.SimSwitch != 0 {
			sw := endstop.PositionSwitch{Device: dev, Threshold: ac.Homing.SimSwitch}
			e := endstop.New(endstop.EndstopConfig{
				Name:     ac.Name + "_home",
				Bit:      ac.Homing.InputBit,
				Inverted: ac.Homing.Inverted,
			}, sw.Triggered)
			if err := k.inputs.Add(e); err != nil {
				return errors.ConfigOptionError(section+".homing", "input_bit", err.Error()).SetAxis(int(ac.ID))
			}
			signal = k.inputs
		}
		if err := k.sched.SetAxisConfig(a, ac.AxisConfig(signal)); err != nil {
			return errors.Wrap(err, errors.ErrConfigValidation, "axis rejected configuration").
				SetSection(section).
				SetAxis(int(ac.ID))
		}

		if pos, ok := homes[ac.ID]; ok {
			if err := k.sched.SetAxisHomePosition(a, pos); err != nil {
				return errors.Wrap(err, errors.ErrRuntimeInit, "restore home position").SetAxis(int(ac.ID))
			}
			k.log.WithFields(log.Fields{"axis": ac.ID, "home": pos}).Info("home position restored")
		}
	}
	return nil
}

// emergencyStop runs on the safety manager's goroutine and hands the stop
// to the tick loop.
func (k *kernel) emergencyStop(code errors.Code) {
	k.reactor.Submit(func() error {
		for _, a := range k.sched.Axes() {
			a.EmergencyStop(code)
		}
		return nil
	})
}

// ApplyRangeLimit updates the software limits of a running axis.
func (k *kernel) ApplyRangeLimit(id int32, rl config.RangeLimitConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	info := config.AxisConfig{RangeLimit: rl}.RangeLimitInfo()
	return k.reactor.Call(ctx, func() error {
		a := k.sched.Axis(id)
		if a == nil {
			return errors.AxisNotExist
		}
		return a.SetRangeLimitInfo(info)
	})
}

func (k *kernel) close() {
	if k.journal != nil {
		k.journal.Close()
	}
	if k.store != nil {
		if err := k.store.Close(); err != nil {
			k.log.WithError(err).Warn("store close failed")
		}
	}
}
