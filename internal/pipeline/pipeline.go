// Package pipeline wires the AOA transport, demux, auth, decode and
// render stages into the mirror host's three-worker streaming loop.
package pipeline

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfkrypt/mirror/internal/auth"
	"github.com/wolfkrypt/mirror/internal/demux"
	"github.com/wolfkrypt/mirror/internal/media"
	"github.com/wolfkrypt/mirror/internal/protocol"
	"github.com/wolfkrypt/mirror/internal/queue"
)

// Transport is the bulk-pipe surface the pipeline drives; *aoa.Host
// satisfies it. Kept narrow and mockable so the worker loops can be
// tested without real USB hardware.
type Transport interface {
	IsConnected() bool
	Connect() error
	Disconnect()
	Read(buf []byte, timeout time.Duration) (int, error)
	Write(data []byte) bool
}

const (
	videoQueueCap = 30
	audioQueueCap = 50
	frameQueueCap = 1

	usbReadSize    = 16384
	usbReadTimeout = 50 * time.Millisecond

	decoderGetTimeout = 100 * time.Millisecond
	renderGetTimeout  = 16 * time.Millisecond
)

// State is the pipeline's coarse lifecycle state, reported to the status
// surface and exposed for tests.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateStreaming
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Pipeline drives the three-worker streaming loop: a USB pump (Stage A)
// that demuxes and inline-authenticates, a decoder feeder (Stage B), and
// a render poll (Stage C). A single atomic running flag, read with a
// short timeout by every worker, is the sole cancellation mechanism.
type Pipeline struct {
	host     Transport
	authn    *auth.Authenticator
	decoder  media.Decoder
	renderer media.Renderer

	running atomic.Bool
	state   atomic.Int32

	videoQueue *queue.DropAtProducer[[]byte]
	audioQueue *queue.DropAtProducer[[]byte]
	frameQueue *queue.Dropping[media.Frame]

	reassembler demux.Reassembler

	done         chan struct{}
	teardownDone chan struct{}
	haltOnce     sync.Once

	onStatus func(string)
	onAudio  func([]byte)
	onConfig func(protocol.ConfigSubtype, []byte)

	videoDrops   atomic.Uint64
	audioDrops   atomic.Uint64
	resyncs      atomic.Uint64
	decoderFails atomic.Uint64
}

// Stats is a point-in-time snapshot of the pipeline's internal counters,
// used by the status HTTP surface and by tests.
type Stats struct {
	State           State
	VideoQueueLen   int
	AudioQueueLen   int
	FrameQueueLen   int
	VideoDrops      uint64
	AudioDrops      uint64
	Resyncs         uint64
	DecoderFailures uint64
}

// Stats returns a snapshot of the pipeline's current counters and queue
// depths for the status/metrics surface to poll.
func (p *Pipeline) Stats() Stats {
	return Stats{
		State:           p.State(),
		VideoQueueLen:   p.videoQueue.Len(),
		AudioQueueLen:   p.audioQueue.Len(),
		FrameQueueLen:   p.frameQueue.Len(),
		VideoDrops:      p.videoDrops.Load(),
		AudioDrops:      p.audioDrops.Load(),
		Resyncs:         p.resyncs.Load(),
		DecoderFailures: p.decoderFails.Load(),
	}
}

// New builds a Pipeline around an already-constructed transport,
// authenticator, decoder and renderer, using the default video/audio
// ingress queue capacities (30/50). The decoder and renderer may be the
// same concrete value (see media.ProcessRenderer).
func New(host Transport, authn *auth.Authenticator, decoder media.Decoder, renderer media.Renderer) *Pipeline {
	return NewWithCapacity(host, authn, decoder, renderer, videoQueueCap, audioQueueCap)
}

// NewWithCapacity is New with configurable video/audio ingress queue
// capacities, for deployments that need a wider or narrower latency
// buffer than the spec defaults (e.g. MIRROR_VIDEO_CAP/MIRROR_AUDIO_CAP).
func NewWithCapacity(host Transport, authn *auth.Authenticator, decoder media.Decoder, renderer media.Renderer, videoCap, audioCap int) *Pipeline {
	if videoCap < 1 {
		videoCap = videoQueueCap
	}
	if audioCap < 1 {
		audioCap = audioQueueCap
	}
	return &Pipeline{
		host:       host,
		authn:      authn,
		decoder:    decoder,
		renderer:   renderer,
		videoQueue: queue.NewDropAtProducer[[]byte](videoCap),
		audioQueue: queue.NewDropAtProducer[[]byte](audioCap),
		frameQueue: queue.NewDropping[media.Frame](frameQueueCap),
	}
}

// OnStatus registers a callback for human-readable status lines.
func (p *Pipeline) OnStatus(fn func(string)) { p.onStatus = fn }

// OnAudio registers a callback invoked with each raw (undecoded) audio payload.
func (p *Pipeline) OnAudio(fn func([]byte)) { p.onAudio = fn }

// OnConfig registers a callback invoked with each Config packet's
// subtype and payload, in addition to the decoder being fed directly.
func (p *Pipeline) OnConfig(fn func(protocol.ConfigSubtype, []byte)) { p.onConfig = fn }

// State returns the pipeline's current lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// IsRunning reports whether the pipeline believes it is actively streaming.
func (p *Pipeline) IsRunning() bool { return p.running.Load() }

// Start launches all three workers. It does not block on the handshake
// completing; state transitions are reported via OnStatus.
func (p *Pipeline) Start() error {
	if p.running.Load() {
		return nil
	}

	p.state.Store(int32(StateConnecting))
	if !p.host.IsConnected() {
		if err := p.host.Connect(); err != nil {
			p.state.Store(int32(StateIdle))
			return fmt.Errorf("pipeline: connect: %w", err)
		}
	}

	if !p.renderer.Start() {
		p.state.Store(int32(StateIdle))
		return fmt.Errorf("pipeline: renderer failed to start")
	}

	p.running.Store(true)
	p.state.Store(int32(StateAuthenticating))
	p.done = make(chan struct{})
	p.teardownDone = make(chan struct{})

	stageDone := make(chan struct{}, 3)
	go p.usbPumpLoop(stageDone)
	go p.decoderLoop(stageDone)
	go p.renderPollLoop(stageDone)
	go p.awaitStages(stageDone)

	p.reportStatus("pipeline started")
	return nil
}

// awaitStages waits for all three workers to exit — which happens as
// soon as running is false, whether that was set by Stop or by a worker
// that hit a fatal condition on its own (TransportFatal, AuthFail) — and
// then runs teardown exactly once. Apart from Stop's fallback after its
// 1 s wait, this is the only place teardown is triggered from, so
// whichever path notices the pipeline should stop first still gets the
// full teardown sequence run on its behalf.
func (p *Pipeline) awaitStages(stageDone <-chan struct{}) {
	for i := 0; i < 3; i++ {
		<-stageDone
	}
	close(p.done)
	p.haltOnce.Do(p.teardown)
}

// Stop signals all workers to exit and waits (bounded) for the teardown
// that follows — whether that teardown was triggered by this call or
// already underway because a worker hit a fatal condition first. Safe to
// call multiple times, and safe to call before Start.
func (p *Pipeline) Stop() {
	if p.done == nil {
		return
	}
	p.running.Store(false)

	select {
	case <-p.teardownDone:
	case <-time.After(1 * time.Second):
		log.Println("pipeline: stop timed out waiting for workers")
		p.haltOnce.Do(p.teardown)
	}
}

// teardown releases the renderer and transport, clears the queues, and
// transitions to Idle. Run at most once per Pipeline, via haltOnce (which
// is never reset), regardless of whether Stop or a worker's fatal-path
// triggered it.
func (p *Pipeline) teardown() {
	p.state.Store(int32(StateStopping))

	p.decoder.Stop()
	p.renderer.Stop()
	p.host.Disconnect()

	p.videoQueue.Clear()
	p.audioQueue.Clear()
	p.frameQueue.Clear()
	p.reassembler.Reset()

	p.state.Store(int32(StateIdle))
	p.reportStatus("pipeline stopped")
	close(p.teardownDone)
}

// usbPumpLoop is Stage A: reads the bulk pipe, demuxes packets, and
// routes them — auth packets are handled inline for minimal round-trip
// latency, audio is passed through its ingress queue inline to OnAudio,
// and video is queued for the decoder stage.
func (p *Pipeline) usbPumpLoop(done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	buf := make([]byte, usbReadSize)
	for p.running.Load() && p.host.IsConnected() {
		n, err := p.host.Read(buf, usbReadTimeout)
		if err != nil {
			p.reportStatus("usb connection lost")
			break
		}
		if n == 0 {
			continue
		}

		if n := p.reassembler.Feed(buf[:n], p.handlePacket); n > 0 {
			p.resyncs.Add(uint64(n))
		}
	}
	p.running.Store(false)
}

func (p *Pipeline) handlePacket(pkt protocol.Packet) {
	switch pkt.Type {
	case protocol.Video:
		if err := p.videoQueue.TryPut(pkt.Payload); err != nil {
			dropped := p.videoDrops.Add(1)
			if dropped%10 == 0 {
				p.reportStatus(fmt.Sprintf("video ingress full, dropped %d frames so far", dropped))
			}
		}

	case protocol.Audio:
		if err := p.audioQueue.TryPut(pkt.Payload); err != nil {
			p.audioDrops.Add(1)
		} else if data, ok := p.audioQueue.Get(0); ok && p.onAudio != nil {
			p.onAudio(data)
		}

	case protocol.Config:
		if len(pkt.Payload) < 1 {
			return
		}
		subtype := protocol.ConfigSubtype(pkt.Payload[0])
		data := pkt.Payload[1:]
		switch subtype {
		case protocol.VideoSPS:
			p.decoder.SetSPS(data)
		case protocol.VideoPPS:
			p.decoder.SetPPS(data)
		}
		if p.onConfig != nil {
			p.onConfig(subtype, data)
		}

	case protocol.AuthChallenge:
		p.handleAuthChallenge(pkt.Payload)

	case protocol.AuthSuccess:
		p.state.Store(int32(StateStreaming))
		p.reportStatus("authentication successful")

	case protocol.AuthFail:
		p.reportStatus("authentication failed")
		p.running.Store(false)

	case protocol.Heartbeat:
		// no-op keepalive
	}
}

func (p *Pipeline) handleAuthChallenge(challenge []byte) {
	sig, err := p.authn.Sign(challenge)
	if err != nil {
		p.reportStatus(fmt.Sprintf("auth failed: %v", err))
		return
	}
	hdr := protocol.EncodeHeader(protocol.AuthResponse, uint32(len(sig)))
	response := append(hdr[:], sig...)
	if p.host.Write(response) {
		p.reportStatus("auth response sent")
	}
}

// decoderLoop is Stage B: pulls queued video payloads and decodes them,
// pushing any resulting frame into the dropping frame queue.
func (p *Pipeline) decoderLoop(done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	for p.running.Load() {
		payload, ok := p.videoQueue.Get(decoderGetTimeout)
		if !ok {
			continue
		}
		frame, ok := p.decodeSafely(payload)
		if !ok {
			continue
		}
		p.frameQueue.Put(frame)
	}
}

// decodeSafely isolates worker B from a panicking decoder: a corrupt
// frame must not kill the stream, it's logged and counted instead.
func (p *Pipeline) decodeSafely(payload []byte) (frame media.Frame, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.decoderFails.Add(1)
			log.Printf("pipeline: decoder panic recovered: %v", r)
			ok = false
		}
	}()
	return p.decoder.Decode(payload)
}

// renderPollLoop is Stage C: polls the dropping frame queue at roughly
// display refresh rate and pushes whatever is newest to the renderer.
func (p *Pipeline) renderPollLoop(done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	for p.running.Load() && p.renderer.IsRunning() {
		frame, ok := p.frameQueue.Get(renderGetTimeout)
		if !ok {
			continue
		}
		p.renderer.UpdateFrame(frame)
		if frame.Width > 0 && frame.Height > 0 {
			p.renderer.SetVideoSize(frame.Width, frame.Height)
		}
	}
}

func (p *Pipeline) reportStatus(msg string) {
	log.Printf("pipeline: %s", msg)
	if p.onStatus != nil {
		p.onStatus(msg)
	}
}
