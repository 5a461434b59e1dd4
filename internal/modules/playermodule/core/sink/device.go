package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/video"
	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/osd"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// FrameDeviceOptions configures a FrameDevice
type FrameDeviceOptions struct {
	Name       string
	OSDEnabled bool

	// Width and Height fix the output raster; zero accepts any raster.
	Width  int
	Height int

	// Write receives the composited picture of every completed frame.
	Write func(pic *video.Picture, info *types.FrameInfo) error
	// Reset is called by ResetOrClose; an error closes the device.
	Reset func() error
	Close func() error
}

// FrameDevice is the common base of output devices: it keeps the registered
// streams and per-frame buffers, renders the OSD onto the displayed picture
// and notifies listeners. Backends supply the write, reset and close hooks.
type FrameDevice struct {
	logger    hclog.Logger
	opts      FrameDeviceOptions
	state     *osd.State
	renderer  *osd.OSD
	listeners listeners

	mu        sync.Mutex
	streams   map[int]types.StreamInfo
	pictureID int
	buffers   map[int][]byte
	accepted  map[int]bool
	received  map[int]bool
	closed    bool
	displayed int64
}

// NewFrameDevice creates a device sharing the chain's OSD settings.
func NewFrameDevice(opts FrameDeviceOptions, state *osd.State, logger hclog.Logger) *FrameDevice {
	if opts.Name == "" {
		opts.Name = "device"
	}
	log := logger.Named(opts.Name)
	return &FrameDevice{
		logger:    log,
		opts:      opts,
		state:     state,
		renderer:  osd.New(state, log),
		streams:   make(map[int]types.StreamInfo),
		pictureID: -1,
		buffers:   make(map[int][]byte),
		accepted:  make(map[int]bool),
		received:  make(map[int]bool),
	}
}

// Raster implements RasterProvider.
func (d *FrameDevice) Raster() (int, int, bool) {
	return d.opts.Width, d.opts.Height, d.opts.Width > 0 && d.opts.Height > 0
}

// Renderer returns the device's OSD renderer.
func (d *FrameDevice) Renderer() *osd.OSD {
	return d.renderer
}

// Displayed returns the number of completed frames.
func (d *FrameDevice) Displayed() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.displayed
}

func (d *FrameDevice) RegisterListener(l Listener) {
	d.listeners.add(l)
}

// Notify calls fn for every listener. Backends use it to forward window and
// keyboard events.
func (d *FrameDevice) Notify(fn func(Listener)) {
	d.listeners.each(fn)
}

// RegisterStream takes the first picture stream and every sound, timecode
// and event stream.
func (d *FrameDevice) RegisterStream(info types.StreamInfo) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	if err := info.Validate(); err != nil {
		d.logger.Debug("stream rejected", "stream_id", info.ID, "error", err)
		return false
	}
	if info.Type == types.PictureStream {
		if d.pictureID >= 0 {
			return false
		}
		if w, h, fixed := d.Raster(); fixed && (info.Width != w || info.Height != h) {
			d.logger.Debug("picture raster mismatch", "stream_id", info.ID,
				"width", info.Width, "height", info.Height, "raster_width", w, "raster_height", h)
			return false
		}
		d.pictureID = info.ID
	}
	d.streams[info.ID] = info
	return true
}

func (d *FrameDevice) AcceptStreamFrame(streamID int, _ *types.FrameInfo) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.streams[streamID]; !ok || d.closed {
		return false
	}
	d.accepted[streamID] = true
	return true
}

func (d *FrameDevice) StreamBuffer(streamID, size int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, ok := d.streams[streamID]
	if !ok || !d.accepted[streamID] {
		return nil, fmt.Errorf("stream %d not accepted", streamID)
	}
	if info.Type == types.PictureStream && size != info.FrameSize() {
		return nil, fmt.Errorf("%w: picture buffer size %d, want %d",
			playererrors.ErrUnsupportedFormat, size, info.FrameSize())
	}
	buf := d.buffers[streamID]
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	d.buffers[streamID] = buf
	return buf, nil
}

func (d *FrameDevice) ReceiveStreamFrame(streamID int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.buffers[streamID]
	if !ok || !d.accepted[streamID] {
		return fmt.Errorf("stream %d not accepted", streamID)
	}
	if len(data) > 0 && len(buf) > 0 && &data[0] != &buf[0] {
		copy(buf, data)
	}
	d.received[streamID] = true
	return nil
}

// CompleteFrame renders the OSD onto the picture, writes the frame and
// notifies listeners.
func (d *FrameDevice) CompleteFrame(info *types.FrameInfo) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return playererrors.ErrClosed
	}

	var pic *video.Picture
	if d.pictureID >= 0 && d.received[d.pictureID] {
		stream := d.streams[d.pictureID]
		p, err := video.WrapPicture(stream.Format, stream.Width, stream.Height, d.buffers[d.pictureID])
		if err == nil {
			pic = p
		}
	}
	if pic != nil && d.opts.OSDEnabled {
		if err := d.renderer.Render(pic, info); err != nil {
			d.logger.Debug("osd render failed", "error", err)
		}
	}

	var writeErr error
	if d.opts.Write != nil {
		writeErr = d.opts.Write(pic, info)
	}
	d.clearFrame()
	d.displayed++
	d.mu.Unlock()

	if writeErr != nil {
		return playererrors.RuntimeIOError("write_frame", writeErr)
	}
	d.listeners.each(func(l Listener) { l.FrameDisplayed(info) })
	return nil
}

func (d *FrameDevice) CancelFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearFrame()
}

func (d *FrameDevice) clearFrame() {
	clear(d.accepted)
	clear(d.received)
}

func (d *FrameDevice) OSD() *osd.State {
	return d.state
}

// ResetOrClose forgets the registered streams. A failing reset hook closes
// the device.
func (d *FrameDevice) ResetOrClose() bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.streams = make(map[int]types.StreamInfo)
	d.buffers = make(map[int][]byte)
	d.pictureID = -1
	d.clearFrame()
	d.mu.Unlock()

	if d.opts.Reset != nil {
		if err := d.opts.Reset(); err != nil {
			d.logger.Warn("device reset failed, closing", "error", playererrors.DeviceResetError("reset", err))
			_ = d.Close()
			return false
		}
	}
	return true
}

func (d *FrameDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.opts.Close != nil {
		return d.opts.Close()
	}
	return nil
}

// Device is an opened base output together with any window it owns
type Device struct {
	Sink   Sink
	Window io.Closer
}

// Close closes the sink and then the owned window.
func (d Device) Close() error {
	var errs []error
	if d.Sink != nil {
		errs = append(errs, d.Sink.Close())
	}
	if d.Window != nil {
		errs = append(errs, d.Window.Close())
	}
	return errors.Join(errs...)
}

// DeviceConfig is what an opener needs to open one base device
type DeviceConfig struct {
	Type       types.OutputType
	Target     string
	WindowID   uint64
	OSDEnabled bool
}

// DeviceOpener opens one base device type
type DeviceOpener func(ctx context.Context, cfg DeviceConfig, state *osd.State, logger hclog.Logger) (Device, error)

// OutputConfig describes the whole base output, possibly dual
type OutputConfig struct {
	Type            types.OutputType
	Device          string
	SecondaryDevice string
	WindowID        uint64
	SDIOSDEnabled   bool
	X11OSDEnabled   bool
}

// Output is the opened base output. Secondary is set for dual outputs.
type Output struct {
	State     *osd.State
	Primary   Device
	Secondary *Device
}

// Close closes the secondary device and then the primary.
func (o *Output) Close() error {
	var errs []error
	if o.Secondary != nil {
		errs = append(errs, o.Secondary.Close())
	}
	errs = append(errs, o.Primary.Close())
	return errors.Join(errs...)
}

// DeviceRegistry maps output types to device openers. The null and raw
// devices are built in; SDI and X11 backends register themselves.
type DeviceRegistry struct {
	logger  hclog.Logger
	mu      sync.RWMutex
	openers map[types.OutputType]DeviceOpener
}

// NewDeviceRegistry creates a registry with the built-in devices.
func NewDeviceRegistry(logger hclog.Logger) *DeviceRegistry {
	r := &DeviceRegistry{
		logger:  logger.Named("devices"),
		openers: make(map[types.OutputType]DeviceOpener),
	}
	r.openers[types.OutputNull] = openNull
	r.openers[types.OutputRaw] = openRaw
	return r
}

// Register installs the opener for a single device type. Dual outputs are
// composed from their primary and secondary types.
func (r *DeviceRegistry) Register(outputType types.OutputType, opener DeviceOpener) error {
	if outputType.IsDual() || !isKnownOutput(outputType) {
		return fmt.Errorf("%w: %s", playererrors.ErrUnsupportedOutput, outputType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[outputType] = opener
	return nil
}

// Supports reports whether every device of the output type has an opener.
func (r *DeviceRegistry) Supports(outputType types.OutputType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if outputType.IsDual() {
		_, p := r.openers[outputType.Primary()]
		_, s := r.openers[outputType.Secondary()]
		return p && s
	}
	_, ok := r.openers[outputType]
	return ok
}

// Open opens one single device.
func (r *DeviceRegistry) Open(ctx context.Context, cfg DeviceConfig, state *osd.State) (Device, error) {
	r.mu.RLock()
	opener, ok := r.openers[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return Device{}, playererrors.BuildError("open_device", playererrors.ErrDeviceUnavailable).
			WithDetail("output_type", cfg.Type)
	}

	dev, err := opener(ctx, cfg, state, r.logger)
	if err != nil {
		return Device{}, playererrors.Wrap(err, playererrors.ErrorTypeBuild, "open_device")
	}
	r.logger.Debug("device opened", "output_type", cfg.Type, "target", cfg.Target)
	return dev, nil
}

// OpenOutput opens the base output. For dual outputs the primary SDI device
// is opened first and closed again when the secondary cannot be opened.
func (r *DeviceRegistry) OpenOutput(ctx context.Context, cfg OutputConfig, logger hclog.Logger) (*Output, error) {
	if !isKnownOutput(cfg.Type) {
		return nil, playererrors.BuildError("open_output", playererrors.ErrUnsupportedOutput).
			WithDetail("output_type", cfg.Type)
	}

	state := osd.NewState(logger)
	primaryType := cfg.Type.Primary()
	primary, err := r.Open(ctx, DeviceConfig{
		Type:       primaryType,
		Target:     cfg.Device,
		WindowID:   cfg.WindowID,
		OSDEnabled: osdEnabledFor(primaryType, cfg),
	}, state)
	if err != nil {
		return nil, err
	}
	out := &Output{State: state, Primary: primary}
	if !cfg.Type.IsDual() {
		return out, nil
	}

	secondaryType := cfg.Type.Secondary()
	secondary, err := r.Open(ctx, DeviceConfig{
		Type:       secondaryType,
		Target:     cfg.SecondaryDevice,
		WindowID:   cfg.WindowID,
		OSDEnabled: osdEnabledFor(secondaryType, cfg),
	}, state)
	if err != nil {
		if cerr := primary.Close(); cerr != nil {
			r.logger.Warn("failed to close primary device", "error", cerr)
		}
		return nil, err
	}
	out.Secondary = &secondary
	return out, nil
}

func osdEnabledFor(t types.OutputType, cfg OutputConfig) bool {
	if t == types.OutputSDI {
		return cfg.SDIOSDEnabled
	}
	return cfg.X11OSDEnabled
}

func isKnownOutput(t types.OutputType) bool {
	for _, o := range types.OutputTypes {
		if o == t {
			return true
		}
	}
	return false
}

func openNull(_ context.Context, cfg DeviceConfig, state *osd.State, logger hclog.Logger) (Device, error) {
	dev := NewFrameDevice(FrameDeviceOptions{Name: "null", OSDEnabled: cfg.OSDEnabled}, state, logger)
	return Device{Sink: dev}, nil
}

// openRaw writes every composited picture to the target file.
func openRaw(_ context.Context, cfg DeviceConfig, state *osd.State, logger hclog.Logger) (Device, error) {
	if cfg.Target == "" {
		return Device{}, fmt.Errorf("%w: raw output needs a target file", playererrors.ErrDeviceUnavailable)
	}
	f, err := os.Create(cfg.Target)
	if err != nil {
		return Device{}, fmt.Errorf("%w: %v", playererrors.ErrDeviceUnavailable, err)
	}

	dev := NewFrameDevice(FrameDeviceOptions{
		Name:       "raw",
		OSDEnabled: cfg.OSDEnabled,
		Write: func(pic *video.Picture, _ *types.FrameInfo) error {
			if pic == nil {
				return nil
			}
			_, err := f.Write(pic.Data)
			return err
		},
		Reset: func() error {
			_, err := f.Seek(0, io.SeekStart)
			if err != nil {
				return err
			}
			return f.Truncate(0)
		},
		Close: f.Close,
	}, state, logger)
	return Device{Sink: dev}, nil
}
