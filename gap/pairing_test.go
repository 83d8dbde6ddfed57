package gap

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/rigado/bredr"
	"github.com/rigado/bredr/hci"
	"github.com/rigado/bredr/hci/cmd"
	"github.com/rigado/bredr/hci/evt"
	"github.com/rigado/bredr/peer"
)

// testDelegate answers every prompt synchronously with configured
// values and records what it was shown.
type testDelegate struct {
	mu      sync.Mutex
	cap     bredr.IOCapability
	confirm bool
	passkey int64

	displayed []uint32
	methods   []bredr.DisplayMethod
	consents  int
	results   []error
}

func (d *testDelegate) IOCapability() bredr.IOCapability {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cap
}

func (d *testDelegate) ConfirmPairing(_ bredr.PeerID, confirm func(bool)) {
	d.mu.Lock()
	d.consents++
	ok := d.confirm
	d.mu.Unlock()
	confirm(ok)
}

func (d *testDelegate) DisplayPasskey(_ bredr.PeerID, passkey uint32, method bredr.DisplayMethod, confirm func(bool)) {
	d.mu.Lock()
	d.displayed = append(d.displayed, passkey)
	d.methods = append(d.methods, method)
	ok := d.confirm
	d.mu.Unlock()
	confirm(ok)
}

func (d *testDelegate) RequestPasskey(_ bredr.PeerID, respond func(int64)) {
	d.mu.Lock()
	pk := d.passkey
	d.mu.Unlock()
	respond(pk)
}

func (d *testDelegate) PairingComplete(_ bredr.PeerID, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, err)
}

func (d *testDelegate) outcomes() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]error, len(d.results))
	copy(out, d.results)
	return out
}

func pairAsync(t *testing.T, m *ConnectionManager, id bredr.PeerID, reqs bredr.SecurityRequirements) chan error {
	t.Helper()
	ch := make(chan error, 1)
	m.Pair(id, reqs, func(err error) { ch <- err })
	return ch
}

func waitErr(t *testing.T, ch chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pairing callback")
	}
	return nil
}

func assertNoErr(t *testing.T, ch chan error) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("unexpected pairing callback: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

// startPairing runs the common initiator prefix: the authentication
// request, the link key miss and the local capability reply.
func startPairing(t *testing.T, m *ConnectionManager, pr *peer.Peer, reqs bredr.SecurityRequirements) chan error {
	t.Helper()
	ch := pairAsync(t, m, pr.ID(), reqs)
	settle(m)
	m.HandleEvent(evt.LinkKeyRequest{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.IOCapabilityRequest{Addr: pr.Addr()})
	settle(m)
	return ch
}

func TestPairSkipsWithSatisfyingBond(t *testing.T) {
	m, ctrl, dir := newTestManager(t)
	pr, _ := establish(t, m, ctrl, dir, 0x20, 0x0020)

	if err := dir.StoreBond(pr.ID(), bredr.BondData{Key: bredr.LinkKey{7}, KeyType: bredr.KeyAuthCombination256}); err != nil {
		t.Fatalf("store bond: %v", err)
	}
	before := ctrl.total()

	if err := waitErr(t, pairAsync(t, m, pr.ID(), bredr.SecurityRequirements{MITM: true})); err != nil {
		t.Fatalf("bonded pairing: %v", err)
	}
	if ctrl.total() != before {
		t.Fatalf("bonded pairing issued %d commands", ctrl.total()-before)
	}
}

func TestPairJustWorks(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapNoInputNoOutput}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, conn := establish(t, m, ctrl, dir, 0x21, 0x0021)

	ch := startPairing(t, m, pr, bredr.SecurityRequirements{})

	if n := ctrl.count(cmd.AuthenticationRequested{}); n != 1 {
		t.Fatalf("expected authentication requested, got %d", n)
	}
	if n := ctrl.count(cmd.LinkKeyRequestNegativeReply{}); n != 1 {
		t.Fatalf("expected link key negative reply, got %d", n)
	}
	reply, ok := ctrl.last(cmd.IOCapabilityRequestReply{})
	if !ok {
		t.Fatal("no io capability reply")
	}
	r := reply.(cmd.IOCapabilityRequestReply)
	if r.IOCapability != bredr.IOCapNoInputNoOutput || r.AuthRequirements != hci.AuthGeneralBonding {
		t.Fatalf("io capability reply %+v", r)
	}

	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapNoInputNoOutput})
	settle(m)
	m.HandleEvent(evt.UserConfirmationRequest{Addr: pr.Addr(), Numeric: 42})
	settle(m)
	if n := ctrl.count(cmd.UserConfirmationRequestReply{}); n != 1 {
		t.Fatalf("just works should auto confirm, got %d replies", n)
	}
	d.mu.Lock()
	consents := d.consents
	d.mu.Unlock()
	if consents != 0 {
		t.Fatal("just works must not prompt the user")
	}

	m.HandleEvent(evt.SimplePairingComplete{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.LinkKeyNotification{Addr: pr.Addr(), Key: bredr.LinkKey{9}, KeyType: bredr.KeyUnauthCombination256})
	settle(m)
	m.HandleEvent(evt.AuthenticationComplete{Handle: conn.Handle()})
	settle(m)
	if n := ctrl.count(cmd.SetConnectionEncryption{}); n != 1 {
		t.Fatalf("expected encryption request, got %d", n)
	}
	m.HandleEvent(evt.EncryptionChange{Handle: conn.Handle(), Enabled: 0x01})
	settle(m)

	if err := waitErr(t, ch); err != nil {
		t.Fatalf("pairing: %v", err)
	}
	bond, ok := pr.Bond()
	if !ok || bond.KeyType != bredr.KeyUnauthCombination256 || bond.Key != (bredr.LinkKey{9}) {
		t.Fatalf("bond not stored: %+v %v", bond, ok)
	}
	sec, ok := conn.Security()
	if !ok || sec.Authenticated || !sec.SecureConnections {
		t.Fatalf("link security %+v %v", sec, ok)
	}
	if out := d.outcomes(); len(out) != 1 || out[0] != nil {
		t.Fatalf("delegate outcomes %v", out)
	}
}

func TestDualModeBondDerivesLEKey(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapNoInputNoOutput}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, conn := establish(t, m, ctrl, dir, 0x31, 0x0031)

	// The same device has been seen over LE as well.
	leAddr := pr.Addr()
	leAddr.Kind = bredr.AddrLEPublic
	if dir.Upsert(leAddr) != pr {
		t.Fatal("expected one record across transports")
	}
	if pr.Technology() != peer.TechDualMode {
		t.Fatalf("peer technology %v", pr.Technology())
	}

	ch := startPairing(t, m, pr, bredr.SecurityRequirements{})
	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapNoInputNoOutput})
	settle(m)
	m.HandleEvent(evt.UserConfirmationRequest{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.SimplePairingComplete{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.LinkKeyNotification{Addr: pr.Addr(), Key: bredr.LinkKey{0x0C}, KeyType: bredr.KeyUnauthCombination256})
	settle(m)
	m.HandleEvent(evt.AuthenticationComplete{Handle: conn.Handle()})
	settle(m)
	m.HandleEvent(evt.EncryptionChange{Handle: conn.Handle(), Enabled: 0x01})
	settle(m)

	if err := waitErr(t, ch); err != nil {
		t.Fatalf("pairing: %v", err)
	}
	lk, ok := pr.LEKey()
	if !ok {
		t.Fatal("dual-mode bond should derive an le key")
	}
	bond := bredr.BondData{Key: bredr.LinkKey{0x0C}, KeyType: bredr.KeyUnauthCombination256}
	want, err := DeriveLEKey(bond, false)
	if err != nil || lk != want {
		t.Fatalf("derived key mismatch: %v %v", lk, err)
	}
}

func TestPairNumericComparison(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapDisplayYesNo, confirm: true}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, conn := establish(t, m, ctrl, dir, 0x22, 0x0022)

	ch := startPairing(t, m, pr, bredr.SecurityRequirements{MITM: true})
	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapDisplayYesNo})
	settle(m)
	m.HandleEvent(evt.UserConfirmationRequest{Addr: pr.Addr(), Numeric: 123456})
	settle(m)

	d.mu.Lock()
	shown := append([]uint32(nil), d.displayed...)
	methods := append([]bredr.DisplayMethod(nil), d.methods...)
	d.mu.Unlock()
	if len(shown) != 1 || shown[0] != 123456 || methods[0] != bredr.DisplayComparison {
		t.Fatalf("comparison prompt %v %v", shown, methods)
	}
	if n := ctrl.count(cmd.UserConfirmationRequestReply{}); n != 1 {
		t.Fatalf("expected confirmation reply, got %d", n)
	}

	m.HandleEvent(evt.SimplePairingComplete{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.LinkKeyNotification{Addr: pr.Addr(), Key: bredr.LinkKey{3}, KeyType: bredr.KeyAuthCombination256})
	settle(m)
	m.HandleEvent(evt.AuthenticationComplete{Handle: conn.Handle()})
	settle(m)
	m.HandleEvent(evt.EncryptionChange{Handle: conn.Handle(), Enabled: 0x01})
	settle(m)

	if err := waitErr(t, ch); err != nil {
		t.Fatalf("pairing: %v", err)
	}
	sec, _ := conn.Security()
	if !sec.Authenticated {
		t.Fatalf("comparison should authenticate, got %+v", sec)
	}
}

func TestPairNumericComparisonRejected(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapDisplayYesNo, confirm: false}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, _ := establish(t, m, ctrl, dir, 0x23, 0x0023)

	ch := startPairing(t, m, pr, bredr.SecurityRequirements{MITM: true})
	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapDisplayYesNo})
	settle(m)
	m.HandleEvent(evt.UserConfirmationRequest{Addr: pr.Addr(), Numeric: 123456})
	settle(m)

	if n := ctrl.count(cmd.UserConfirmationRequestNegativeReply{}); n != 1 {
		t.Fatalf("expected negative reply, got %d", n)
	}
	if err := waitErr(t, ch); err != bredr.ErrCanceled {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if n := ctrl.count(cmd.Disconnect{}); n != 1 {
		t.Fatalf("failed pairing should tear the link down, got %d disconnects", n)
	}
	last, _ := ctrl.last(cmd.Disconnect{})
	if last.(cmd.Disconnect).Reason != hci.ReasonAuthFailure {
		t.Fatalf("disconnect reason %#02x", last.(cmd.Disconnect).Reason)
	}
	if out := d.outcomes(); len(out) != 1 || out[0] == nil {
		t.Fatalf("delegate outcomes %v", out)
	}
}

func TestPairPasskeyEntry(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapKeyboardOnly, passkey: 951753}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, _ := establish(t, m, ctrl, dir, 0x24, 0x0024)

	ch := startPairing(t, m, pr, bredr.SecurityRequirements{MITM: true})
	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapDisplayOnly})
	settle(m)
	m.HandleEvent(evt.UserPasskeyRequest{Addr: pr.Addr()})
	settle(m)

	reply, ok := ctrl.last(cmd.UserPasskeyRequestReply{})
	if !ok {
		t.Fatal("no passkey reply")
	}
	if reply.(cmd.UserPasskeyRequestReply).Passkey != 951753 {
		t.Fatalf("passkey %d", reply.(cmd.UserPasskeyRequestReply).Passkey)
	}
	assertNoErr(t, ch)
}

func TestPairPasskeyDisplay(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapDisplayOnly, confirm: true}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, _ := establish(t, m, ctrl, dir, 0x25, 0x0025)

	ch := startPairing(t, m, pr, bredr.SecurityRequirements{MITM: true})
	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapKeyboardOnly})
	settle(m)
	m.HandleEvent(evt.UserPasskeyNotification{Addr: pr.Addr(), Passkey: 314159})
	settle(m)

	d.mu.Lock()
	shown := append([]uint32(nil), d.displayed...)
	methods := append([]bredr.DisplayMethod(nil), d.methods...)
	d.mu.Unlock()
	if len(shown) != 1 || shown[0] != 314159 || methods[0] != bredr.DisplayPeerEntry {
		t.Fatalf("display prompt %v %v", shown, methods)
	}
	assertNoErr(t, ch)
}

func TestResponderFlow(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapNoInputNoOutput}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, conn := establish(t, m, ctrl, dir, 0x26, 0x0026)

	// The peer drives: its capabilities arrive first, then the
	// controller asks for ours.
	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapNoInputNoOutput})
	settle(m)
	m.HandleEvent(evt.IOCapabilityRequest{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.UserConfirmationRequest{Addr: pr.Addr(), Numeric: 7})
	settle(m)
	m.HandleEvent(evt.SimplePairingComplete{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.LinkKeyNotification{Addr: pr.Addr(), Key: bredr.LinkKey{5}, KeyType: bredr.KeyUnauthCombination256})
	settle(m)
	m.HandleEvent(evt.EncryptionChange{Handle: conn.Handle(), Enabled: 0x01})
	settle(m)

	// The responder never drives authentication or encryption itself.
	if n := ctrl.count(cmd.AuthenticationRequested{}); n != 0 {
		t.Fatalf("responder issued %d authentication requests", n)
	}
	if n := ctrl.count(cmd.SetConnectionEncryption{}); n != 0 {
		t.Fatalf("responder issued %d encryption requests", n)
	}
	if !pr.Bonded() {
		t.Fatal("bond not stored")
	}
	sec, ok := conn.Security()
	if !ok || !sec.SecureConnections {
		t.Fatalf("link security %+v %v", sec, ok)
	}
}

func TestPairRejectsLegacyKey(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapNoInputNoOutput}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, _ := establish(t, m, ctrl, dir, 0x27, 0x0027)

	ch := startPairing(t, m, pr, bredr.SecurityRequirements{})
	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapNoInputNoOutput})
	settle(m)
	m.HandleEvent(evt.UserConfirmationRequest{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.SimplePairingComplete{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.LinkKeyNotification{Addr: pr.Addr(), Key: bredr.LinkKey{1}, KeyType: bredr.KeyCombination})
	settle(m)

	if err := waitErr(t, ch); errors.Cause(err) != bredr.ErrInsufficientSecurity {
		t.Fatalf("expected insufficient security, got %v", err)
	}
	if pr.Bonded() {
		t.Fatal("legacy key must not be stored")
	}
	if n := ctrl.count(cmd.Disconnect{}); n != 1 {
		t.Fatalf("expected disconnect, got %d", n)
	}
}

func TestChangedKeyWithoutBondRejected(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapNoInputNoOutput}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, _ := establish(t, m, ctrl, dir, 0x28, 0x0028)

	ch := startPairing(t, m, pr, bredr.SecurityRequirements{})
	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapNoInputNoOutput})
	settle(m)
	m.HandleEvent(evt.UserConfirmationRequest{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.SimplePairingComplete{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.LinkKeyNotification{Addr: pr.Addr(), Key: bredr.LinkKey{2}, KeyType: bredr.KeyChangedCombination})
	settle(m)

	if err := waitErr(t, ch); errors.Cause(err) != bredr.ErrInsufficientSecurity {
		t.Fatalf("expected insufficient security, got %v", err)
	}
	if pr.Bonded() {
		t.Fatal("changed key without prior bond must not be stored")
	}
}

func TestChangedKeyRefreshKeepsClassification(t *testing.T) {
	m, ctrl, dir := newTestManager(t)
	pr, _ := establish(t, m, ctrl, dir, 0x29, 0x0029)

	if err := dir.StoreBond(pr.ID(), bredr.BondData{Key: bredr.LinkKey{1}, KeyType: bredr.KeyAuthCombination256}); err != nil {
		t.Fatalf("store bond: %v", err)
	}

	// Key refresh outside any attempt.
	m.HandleEvent(evt.LinkKeyNotification{Addr: pr.Addr(), Key: bredr.LinkKey{0xAA}, KeyType: bredr.KeyChangedCombination})
	settle(m)

	bond, ok := pr.Bond()
	if !ok || bond.Key != (bredr.LinkKey{0xAA}) {
		t.Fatalf("refreshed key not stored: %+v", bond)
	}
	if bond.KeyType != bredr.KeyAuthCombination256 {
		t.Fatalf("refresh must keep the classification, got %v", bond.KeyType)
	}
}

func TestKeyAuthMismatchRejected(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapDisplayYesNo, confirm: true}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, _ := establish(t, m, ctrl, dir, 0x2A, 0x002A)

	ch := startPairing(t, m, pr, bredr.SecurityRequirements{MITM: true})
	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapDisplayYesNo})
	settle(m)
	m.HandleEvent(evt.UserConfirmationRequest{Addr: pr.Addr(), Numeric: 1})
	settle(m)
	m.HandleEvent(evt.SimplePairingComplete{Addr: pr.Addr()})
	settle(m)

	// Numeric comparison negotiated an authenticated model, but the
	// controller reports an unauthenticated key.
	m.HandleEvent(evt.LinkKeyNotification{Addr: pr.Addr(), Key: bredr.LinkKey{4}, KeyType: bredr.KeyUnauthCombination256})
	settle(m)

	if err := waitErr(t, ch); errors.Cause(err) != bredr.ErrInsufficientSecurity {
		t.Fatalf("expected insufficient security, got %v", err)
	}
	if pr.Bonded() {
		t.Fatal("mismatched key must not be stored")
	}
}

func TestPairWithoutDelegateRefused(t *testing.T) {
	m, ctrl, dir := newTestManager(t)
	pr, _ := establish(t, m, ctrl, dir, 0x2B, 0x002B)

	ch := pairAsync(t, m, pr.ID(), bredr.SecurityRequirements{})
	settle(m)
	m.HandleEvent(evt.LinkKeyRequest{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.IOCapabilityRequest{Addr: pr.Addr()})
	settle(m)

	if n := ctrl.count(cmd.IOCapabilityRequestNegativeReply{}); n != 1 {
		t.Fatalf("expected io capability negative reply, got %d", n)
	}
	if err := waitErr(t, ch); err != bredr.ErrNotReady {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestUnexpectedPairingEventFails(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapNoInputNoOutput}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, _ := establish(t, m, ctrl, dir, 0x2C, 0x002C)

	ch := pairAsync(t, m, pr.ID(), bredr.SecurityRequirements{})
	settle(m)

	// A confirmation request with no capability exchange behind it.
	m.HandleEvent(evt.UserConfirmationRequest{Addr: pr.Addr(), Numeric: 9})
	settle(m)

	if n := ctrl.count(cmd.UserConfirmationRequestNegativeReply{}); n != 1 {
		t.Fatalf("expected negative reply, got %d", n)
	}
	if err := waitErr(t, ch); errors.Cause(err) != bredr.ErrNotSupported {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if n := ctrl.count(cmd.Disconnect{}); n != 1 {
		t.Fatalf("expected disconnect, got %d", n)
	}
}

func TestEncryptionChangeOutsideAttemptIgnored(t *testing.T) {
	m, ctrl, dir := newTestManager(t)
	_, conn := establish(t, m, ctrl, dir, 0x2D, 0x002D)
	before := ctrl.total()

	// Controller initiated key refresh on an otherwise idle link.
	m.HandleEvent(evt.EncryptionChange{Handle: conn.Handle(), Enabled: 0x01})
	settle(m)

	if ctrl.total() != before {
		t.Fatal("spontaneous encryption change must not trigger traffic")
	}
	if m.Connected(conn.PeerID()) != true {
		t.Fatal("link should survive")
	}
}

func TestPairCoalesces(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapNoInputNoOutput}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, conn := establish(t, m, ctrl, dir, 0x2E, 0x002E)

	ch1 := pairAsync(t, m, pr.ID(), bredr.SecurityRequirements{})
	ch2 := pairAsync(t, m, pr.ID(), bredr.SecurityRequirements{})
	settle(m)

	if n := ctrl.count(cmd.AuthenticationRequested{}); n != 1 {
		t.Fatalf("coalesced pairing issued %d authentication requests", n)
	}

	m.HandleEvent(evt.LinkKeyRequest{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.IOCapabilityRequest{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapNoInputNoOutput})
	settle(m)
	m.HandleEvent(evt.UserConfirmationRequest{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.SimplePairingComplete{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.LinkKeyNotification{Addr: pr.Addr(), Key: bredr.LinkKey{6}, KeyType: bredr.KeyUnauthCombination256})
	settle(m)
	m.HandleEvent(evt.AuthenticationComplete{Handle: conn.Handle()})
	settle(m)
	m.HandleEvent(evt.EncryptionChange{Handle: conn.Handle(), Enabled: 0x01})
	settle(m)

	if err := waitErr(t, ch1); err != nil {
		t.Fatalf("first caller: %v", err)
	}
	if err := waitErr(t, ch2); err != nil {
		t.Fatalf("second caller: %v", err)
	}
}

func TestStrongerJoinAfterKeyAccepted(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapNoInputNoOutput}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, conn := establish(t, m, ctrl, dir, 0x2F, 0x002F)

	ch1 := startPairing(t, m, pr, bredr.SecurityRequirements{})
	m.HandleEvent(evt.IOCapabilityResponse{Addr: pr.Addr(), IOCapability: bredr.IOCapNoInputNoOutput})
	settle(m)
	m.HandleEvent(evt.UserConfirmationRequest{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.SimplePairingComplete{Addr: pr.Addr()})
	settle(m)
	m.HandleEvent(evt.LinkKeyNotification{Addr: pr.Addr(), Key: bredr.LinkKey{8}, KeyType: bredr.KeyUnauthCombination256})
	settle(m)

	// The unauthenticated key is already accepted; a caller demanding
	// MITM now cannot be served by this attempt.
	ch2 := pairAsync(t, m, pr.ID(), bredr.SecurityRequirements{MITM: true})
	if err := waitErr(t, ch2); err != bredr.ErrInsufficientSecurity {
		t.Fatalf("expected insufficient security for late strong caller, got %v", err)
	}

	m.HandleEvent(evt.AuthenticationComplete{Handle: conn.Handle()})
	settle(m)
	m.HandleEvent(evt.EncryptionChange{Handle: conn.Handle(), Enabled: 0x01})
	settle(m)
	if err := waitErr(t, ch1); err != nil {
		t.Fatalf("original caller: %v", err)
	}
}

func TestLinkLossFailsPairingOnce(t *testing.T) {
	d := &testDelegate{cap: bredr.IOCapNoInputNoOutput}
	m, ctrl, dir := newTestManager(t)
	m.SetPairingDelegate(d)
	pr, conn := establish(t, m, ctrl, dir, 0x30, 0x0030)

	ch := pairAsync(t, m, pr.ID(), bredr.SecurityRequirements{})
	settle(m)

	m.HandleEvent(evt.DisconnectionComplete{Handle: conn.Handle(), Reason: hci.StatusConnectionTimeout})
	settle(m)

	if err := waitErr(t, ch); err != bredr.ErrLinkDisconnected {
		t.Fatalf("expected ErrLinkDisconnected, got %v", err)
	}
	assertNoErr(t, ch)
	if pr.State() != peer.StateDisconnected {
		t.Fatalf("peer state %v", pr.State())
	}
}
