package network

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver"
	gonetworkmanager "github.com/Wifx/gonetworkmanager/v3"
	"github.com/go-resty/resty/v2"
	portalboxd "github.com/portalbox/portalboxd/pkg"
)

// AP mode and the LastScan property both need NetworkManager 1.12 or
// newer.
const minimumNMVersion = "1.12.0"

func NewNetworkManager(config portalboxd.ServerConfig) (portalboxd.NetworkManager, error) {
	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		return nil, fmt.Errorf("connect to NetworkManager: %w", err)
	}

	version, err := nm.GetPropertyVersion()
	if err != nil {
		return nil, fmt.Errorf("read NetworkManager version: %w", err)
	}
	if err := checkVersion(version); err != nil {
		return nil, err
	}

	settings, err := gonetworkmanager.NewSettings()
	if err != nil {
		return nil, fmt.Errorf("connect to NetworkManager settings: %w", err)
	}

	return &NetworkManagerLinux{
		config:   config,
		nm:       nm,
		settings: settings,
		probe:    resty.New().SetTimeout(5 * time.Second),
	}, nil
}

func checkVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("parse NetworkManager version %q: %w", version, err)
	}

	minimum := semver.MustParse(minimumNMVersion)
	if v.LessThan(minimum) {
		return fmt.Errorf("NetworkManager %s is too old, need at least %s for AP mode", version, minimumNMVersion)
	}
	return nil
}
