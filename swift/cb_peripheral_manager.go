package swift

import (
	"errors"
	"sync"
	"time"

	"github.com/user/paybeacon/logger"
	"github.com/user/paybeacon/radio"
)

type CBPeripheralManagerDelegate interface {
	PeripheralManagerDidUpdateState(peripheral *CBPeripheralManager)
	DidStartAdvertising(peripheral *CBPeripheralManager, err error)
}

// CBPeripheralManager owns the advertising role. Third-party apps on this
// platform may only advertise a local name and service UUIDs; manufacturer
// data in the advertisement dictionary is dropped, which is why the token
// travels as a structured service identifier string here.
type CBPeripheralManager struct {
	Delegate CBPeripheralManagerDelegate

	uuid   string
	medium *radio.Medium

	mu          sync.Mutex
	state       CBManagerState
	advertising bool
}

func NewCBPeripheralManager(delegate CBPeripheralManagerDelegate, uuid string, medium *radio.Medium) *CBPeripheralManager {
	return &CBPeripheralManager{
		Delegate: delegate,
		uuid:     uuid,
		medium:   medium,
		state:    CBManagerStatePoweredOn,
	}
}

// State returns the manager state.
func (p *CBPeripheralManager) State() CBManagerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState simulates a radio power/authorization transition and notifies
// the delegate, matching peripheralManagerDidUpdateState.
func (p *CBPeripheralManager) SetState(state CBManagerState) {
	p.mu.Lock()
	p.state = state
	delegate := p.Delegate
	p.mu.Unlock()

	if delegate != nil {
		delegate.PeripheralManagerDidUpdateState(p)
	}
}

// StartAdvertising begins broadcasting the advertisement dictionary.
// Matches: peripheralManager.startAdvertising(advertisementData)
func (p *CBPeripheralManager) StartAdvertising(advertisementData map[string]interface{}) {
	p.mu.Lock()
	if p.state != CBManagerStatePoweredOn {
		state := p.state
		delegate := p.Delegate
		p.mu.Unlock()
		if delegate != nil {
			go delegate.DidStartAdvertising(p, errors.New("peripheral manager not powered on: "+state.String()))
		}
		return
	}

	frame := radio.Frame{}
	if name, ok := advertisementData[AdvDataLocalName].(string); ok {
		frame.LocalName = name
	}
	if services, ok := advertisementData[AdvDataServiceUUIDs].([]string); ok {
		frame.ServiceUUIDs = services
	}
	// Manufacturer data is silently ignored for third-party apps.

	p.medium.SetAdvertising(p.uuid, frame)
	p.advertising = true
	delegate := p.Delegate
	p.mu.Unlock()

	logger.Info(shortID(p.uuid)+" iOS", "📡 Started Advertising (name=%q)", frame.LocalName)

	if delegate != nil {
		go func() {
			// Small delay to match real async delegate behavior
			time.Sleep(10 * time.Millisecond)
			delegate.DidStartAdvertising(p, nil)
		}()
	}
}

// StopAdvertising halts the broadcast.
// Matches: peripheralManager.stopAdvertising()
func (p *CBPeripheralManager) StopAdvertising() {
	p.mu.Lock()
	if !p.advertising {
		p.mu.Unlock()
		return
	}
	p.advertising = false
	p.mu.Unlock()

	p.medium.ClearAdvertising(p.uuid)
	logger.Info(shortID(p.uuid)+" iOS", "📡 Stopped Advertising")
}

// IsAdvertising returns whether currently advertising.
func (p *CBPeripheralManager) IsAdvertising() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advertising
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
