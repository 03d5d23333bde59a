package main

import (
	"github.com/coreos/go-systemd/v22/daemon"
	portalboxd "github.com/portalbox/portalboxd/pkg"
	"github.com/portalbox/portalboxd/pkg/conductor"
	"github.com/portalbox/portalboxd/pkg/system"
	"github.com/portalbox/portalboxd/pkg/system/lifecycle"
	"github.com/portalbox/portalboxd/pkg/system/network"
	"github.com/portalbox/portalboxd/pkg/system/network/nl80211"
	log "github.com/sirupsen/logrus"
)

type server struct {
	config portalboxd.ServerConfig
}

func Server(config portalboxd.ServerConfig) server {
	return server{config}
}

func (t server) Start() {
	/* ----------------------------------------------------------------------- */
	// Set up our system interfaces so we can talk to the host OS

	networkManager, err := network.NewNetworkManager(t.config)
	if err != nil {
		log.WithError(err).Fatal("could not reach NetworkManager")
	}

	scanner := nl80211.New()
	journalReader := system.NewJournalReader(t.config)
	lifecycleManager := lifecycle.NewLifecycleManager()
	hostInfo := system.NewHostInfo()

	/* ----------------------------------------------------------------------- */
	// Set up Portalboxd, which owns the portal AP lifecycle

	pbx := portalboxd.NewPortalboxd(t.config, networkManager, scanner, journalReader, lifecycleManager, hostInfo)

	/* ----------------------------------------------------------------------- */
	// Setup our external APIs. REST, Websockets

	wsh := portalboxd.NewWSRelay(pbx.Changes)
	rest := portalboxd.RESTAPI(t.config, pbx, wsh)

	/* ----------------------------------------------------------------------- */
	// Create a conductor to manage all the above services startup/shutdown

	var c *conductor.Conductor

	if t.config.Verbose {
		c = conductor.NewConductor(
			conductor.HookSignals(),
			conductor.Noisy(),
		)
	} else {
		c = conductor.NewConductor(
			conductor.HookSignals(),
		)
	}
	c.Service("Portalboxd", pbx)
	c.Service("WSock Relay", wsh)
	c.Service("REST API", rest)

	done := c.Start()

	// Tell systemd we are up, when running as a unit.
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.WithError(err).Warn("sd_notify failed")
	} else if ok {
		log.Debug("notified systemd of readiness")
	}

	<-done
}
