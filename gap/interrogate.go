package gap

import (
	"github.com/pkg/errors"

	"github.com/rigado/bredr/hci"
	"github.com/rigado/bredr/hci/cmd"
	"github.com/rigado/bredr/hci/evt"
	"github.com/rigado/bredr/peer"
)

// featureExtendedFeatures is bit 63 of LMP features page 0.
const featureExtendedFeatures = uint64(1) << 63

// interrogation reads the remote version and feature pages after an ACL
// link comes up. The connection is not usable until it finishes; its
// outcome decides whether queued Connect callbacks see success.
type interrogation struct {
	m    *ConnectionManager
	conn *Connection
	cb   func(error)
	done bool
}

func (m *ConnectionManager) startInterrogation(c *Connection, cb func(error)) {
	i := &interrogation{m: m, conn: c, cb: cb}
	c.interrogation = i
	m.send(cmd.ReadRemoteVersionInformation{Handle: c.handle}, func(err error) {
		if err != nil {
			i.finish(errors.Wrap(err, "read remote version"))
		}
	})
}

// cancel suppresses the completion callback; used when the link dies
// mid-interrogation and the disconnect path takes over notification.
func (i *interrogation) cancel() {
	i.done = true
}

func (i *interrogation) finish(err error) {
	if i.done {
		return
	}
	i.done = true
	i.conn.interrogation = nil
	i.cb(err)
}

func (i *interrogation) onVersion(e evt.ReadRemoteVersionInformationComplete) {
	if i.done {
		return
	}
	if err := hci.StatusToError(e.Status); err != nil {
		i.finish(errors.Wrap(err, "remote version"))
		return
	}

	v := peer.VersionInfo{Version: e.Version, Manufacturer: e.Manufacturer, Subversion: e.Subversion}
	i.conn.version = v
	if pr := i.m.peers.Get(i.conn.peerID); pr != nil {
		pr.SetVersion(v)
	}

	i.m.send(cmd.ReadRemoteSupportedFeatures{Handle: i.conn.handle}, func(err error) {
		if err != nil {
			i.finish(errors.Wrap(err, "read remote features"))
		}
	})
}

func (i *interrogation) onFeatures(e evt.ReadRemoteSupportedFeaturesComplete) {
	if i.done {
		return
	}
	if err := hci.StatusToError(e.Status); err != nil {
		i.finish(errors.Wrap(err, "remote features"))
		return
	}

	i.recordFeatures(0, e.Features)
	if e.Features&featureExtendedFeatures == 0 {
		i.finish(nil)
		return
	}

	i.m.send(cmd.ReadRemoteExtendedFeatures{Handle: i.conn.handle, Page: 1}, func(err error) {
		if err != nil {
			i.finish(errors.Wrap(err, "read remote extended features"))
		}
	})
}

func (i *interrogation) onExtendedFeatures(e evt.ReadRemoteExtendedFeaturesComplete) {
	if i.done {
		return
	}
	if err := hci.StatusToError(e.Status); err != nil {
		i.finish(errors.Wrap(err, "remote extended features"))
		return
	}

	i.recordFeatures(e.PageNumber, e.Features)
	i.finish(nil)
}

func (i *interrogation) recordFeatures(page byte, features uint64) {
	for int(page) >= len(i.conn.features) {
		i.conn.features = append(i.conn.features, 0)
	}
	i.conn.features[page] = features
	if pr := i.m.peers.Get(i.conn.peerID); pr != nil {
		pr.SetFeaturesPage(page, features)
	}
}
