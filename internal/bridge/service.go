// Package bridge connects a Peblar EV charger to the home automation
// platform: it owns the charger session, the three data coordinators and
// the MQTT entity surface built on top of them.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/julienar/peblar-bridge/internal/config"
	"github.com/julienar/peblar-bridge/internal/metrics"
	"github.com/julienar/peblar-bridge/internal/mqtt"
	"github.com/julienar/peblar-bridge/internal/peblar"
	"github.com/julienar/peblar-bridge/internal/poll"
)

// domain identifies this bridge in device identifiers and topics.
const domain = "peblar"

var (
	// ErrNotReady means the charger could not be reached or answered with
	// an unexpected error; the operator should retry later.
	ErrNotReady = errors.New("charger not ready")

	// ErrAuthRequired means the charger rejected the configured password;
	// the operator must update the credentials.
	ErrAuthRequired = errors.New("authentication required")
)

// Publisher is the slice of the MQTT handler the bridge needs. It exists so
// tests can observe the published entity surface without a broker.
type Publisher interface {
	StateTopic(key string) string
	CommandTopic(key string) string
	AvailabilityTopic() string
	PublishState(key, payload string) error
	PublishDiscovery(component, uniqueID string, payload []byte) error
	Subscribe(topic string, handler mqtt.MessageHandler) error
}

// Runtime bundles everything that lives for the duration of one configured
// charger: the client session, the immutable system information and the
// three coordinators. Entities borrow it; Setup owns it.
type Runtime struct {
	Client            *peblar.Client
	SystemInformation *peblar.SystemInformation

	Meter      *poll.Coordinator[*peblar.Meters]
	UserConfig *poll.Coordinator[*peblar.UserConfiguration]
	Version    *poll.Coordinator[*peblar.Versions]

	publisher Publisher
	logger    *zap.Logger
	name      string
	cancel    context.CancelFunc
}

// classify maps vendor client errors onto the host-facing taxonomy:
// connection problems and unknown vendor errors are retryable, credential
// problems need operator action.
func classify(err error) error {
	var authErr *peblar.AuthError
	if errors.As(err, &authErr) {
		return fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}

	var connErr *peblar.ConnError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: could not connect to charger: %v", ErrNotReady, err)
	}

	return fmt.Errorf("%w: %v", ErrNotReady, err)
}

// Setup brings up the full bridge for one charger: login, system
// information, REST API enablement, concurrent first refresh of all three
// coordinators, device registration, then the entity platforms. On error
// the returned error wraps ErrNotReady or ErrAuthRequired so the caller can
// decide between retrying and reauthenticating.
func Setup(ctx context.Context, cfg *config.Config, pub Publisher, logger *zap.Logger) (*Runtime, error) {
	client, err := peblar.New(cfg.Charger.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to create charger client: %w", err)
	}

	if err := client.Login(ctx, cfg.Charger.Password); err != nil {
		return nil, classify(err)
	}

	info, err := client.SystemInformation(ctx)
	if err != nil {
		return nil, classify(err)
	}

	if err := client.EnableRESTAPI(ctx, peblar.AccessModeReadWrite); err != nil {
		return nil, classify(err)
	}

	logger = logger.With(zap.String("serial", info.ProductSerialNumber))
	logger.Info("Connected to charger",
		zap.String("vendor", info.ProductVendorName),
		zap.String("model", info.ProductModelName),
		zap.String("firmware", info.FirmwareVersion),
	)

	rt := &Runtime{
		Client:            client,
		SystemInformation: info,
		publisher:         pub,
		logger:            logger,
		name:              cfg.Charger.Name,
	}

	rt.Meter = poll.New("meter", cfg.Intervals.Meter,
		instrument("meter", client.Meters), logger)
	rt.UserConfig = poll.New("user_config", cfg.Intervals.UserConfig,
		instrument("user_config", client.UserConfiguration), logger)
	rt.Version = poll.New("version", cfg.Intervals.Version,
		instrument("version", client.Versions), logger)

	// All three first refreshes run concurrently; any failure fails setup.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Meter.Refresh(gctx) })
	g.Go(func() error { return rt.UserConfig.Refresh(gctx) })
	g.Go(func() error { return rt.Version.Refresh(gctx) })
	if err := g.Wait(); err != nil {
		return nil, classify(fmt.Errorf("first refresh failed: %w", err))
	}

	// The device must be registered before any entity state goes out.
	if err := rt.registerDevice(); err != nil {
		return nil, fmt.Errorf("%w: device registration failed: %v", ErrNotReady, err)
	}

	if err := rt.subscribeCommands(); err != nil {
		return nil, fmt.Errorf("%w: command subscription failed: %v", ErrNotReady, err)
	}

	rt.attachStatePublishers()

	// Publish the initial entity states from the snapshots the first
	// refresh produced, then hand the schedule to the coordinators.
	rt.publishMeterState()
	rt.publishUserConfigState()
	rt.publishVersionState()

	loopCtx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	rt.Meter.Start(loopCtx)
	rt.UserConfig.Start(loopCtx)
	rt.Version.Start(loopCtx)

	logger.Info("Bridge setup complete")
	return rt, nil
}

// instrument wraps a fetch with Prometheus observation.
func instrument[T any](name string, fetch func(context.Context) (T, error)) poll.FetchFunc[T] {
	return func(ctx context.Context) (T, error) {
		start := time.Now()
		data, err := fetch(ctx)
		metrics.ObserveRefresh(name, time.Since(start), err)
		return data, err
	}
}

// DeviceID returns the identifier used in MQTT topics, derived from the
// charger's serial number.
func DeviceID(info *peblar.SystemInformation) string {
	return strings.ToLower(info.ProductSerialNumber)
}

// registerDevice announces every entity to the platform. Each discovery
// payload carries the same device block so the platform groups them under
// one physical charger.
func (rt *Runtime) registerDevice() error {
	firmware := ""
	if versions, ok := rt.Version.Data(); ok {
		firmware = versions.Current.Firmware
	}
	dev := deviceRecord(rt.SystemInformation, firmware, rt.name)
	serial := rt.SystemInformation.ProductSerialNumber

	announce := func(component, key string, cfg discoveryConfig) error {
		cfg.UniqueID = fmt.Sprintf("%s_%s_%s", domain, serial, key)
		cfg.AvailabilityTopic = rt.publisher.AvailabilityTopic()
		cfg.Device = dev

		payload, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode discovery config for %s: %w", key, err)
		}
		return rt.publisher.PublishDiscovery(component, cfg.UniqueID, payload)
	}

	for _, desc := range sensorDescriptions {
		cfg := discoveryConfig{
			Name:              desc.Name,
			StateTopic:        rt.publisher.StateTopic(desc.Key),
			DeviceClass:       desc.DeviceClass,
			StateClass:        desc.StateClass,
			UnitOfMeasurement: desc.Unit,
		}
		if err := announce("sensor", desc.Key, cfg); err != nil {
			return err
		}
	}

	for _, desc := range selectDescriptions {
		cfg := discoveryConfig{
			Name:           desc.Name,
			StateTopic:     rt.publisher.StateTopic(desc.Key),
			CommandTopic:   rt.publisher.CommandTopic(desc.Key),
			Options:        desc.Options,
			EntityCategory: "config",
		}
		if err := announce("select", desc.Key, cfg); err != nil {
			return err
		}
	}

	for _, desc := range switchDescriptions {
		cfg := discoveryConfig{
			Name:           desc.Name,
			StateTopic:     rt.publisher.StateTopic(desc.Key),
			CommandTopic:   rt.publisher.CommandTopic(desc.Key),
			PayloadOn:      "ON",
			PayloadOff:     "OFF",
			EntityCategory: "config",
		}
		if err := announce("switch", desc.Key, cfg); err != nil {
			return err
		}
	}

	for _, desc := range numberDescriptions {
		minVal, maxVal := desc.Min, desc.Max
		cfg := discoveryConfig{
			Name:              desc.Name,
			StateTopic:        rt.publisher.StateTopic(desc.Key),
			CommandTopic:      rt.publisher.CommandTopic(desc.Key),
			UnitOfMeasurement: desc.Unit,
			Min:               &minVal,
			Max:               &maxVal,
			EntityCategory:    "config",
		}
		if err := announce("number", desc.Key, cfg); err != nil {
			return err
		}
	}

	for _, desc := range buttonDescriptions {
		cfg := discoveryConfig{
			Name:           desc.Name,
			CommandTopic:   rt.publisher.CommandTopic(desc.Key),
			DeviceClass:    desc.DeviceClass,
			EntityCategory: "config",
		}
		if err := announce("button", desc.Key, cfg); err != nil {
			return err
		}
	}

	cfg := discoveryConfig{
		Name:        "Firmware",
		StateTopic:  rt.publisher.StateTopic("firmware"),
		DeviceClass: "firmware",
	}
	if err := announce("update", "firmware", cfg); err != nil {
		return err
	}

	rt.logger.Info("Device registered",
		zap.String("serial", serial),
		zap.Int("sensors", len(sensorDescriptions)),
	)
	return nil
}

// attachStatePublishers republishes entity state after every coordinator
// refresh. Listeners run on the coordinator's goroutine, after the snapshot
// swap, so they always see a consistent snapshot.
func (rt *Runtime) attachStatePublishers() {
	rt.Meter.AddListener(rt.publishMeterState)
	rt.UserConfig.AddListener(rt.publishUserConfigState)
	rt.Version.AddListener(rt.publishVersionState)
}

func (rt *Runtime) publishMeterState() {
	meters, ok := rt.Meter.Data()
	if !ok {
		return
	}
	for _, desc := range sensorDescriptions {
		if err := rt.publisher.PublishState(desc.Key, desc.ValueFn(*meters)); err != nil {
			rt.logger.Warn("Failed to publish sensor state", zap.String("key", desc.Key), zap.Error(err))
		}
	}
}

func (rt *Runtime) publishUserConfigState() {
	uc, ok := rt.UserConfig.Data()
	if !ok {
		return
	}

	for _, desc := range selectDescriptions {
		current := desc.CurrentFn(*uc)
		if current == "" {
			// Absent value: publish nothing rather than an invalid option.
			continue
		}
		if err := rt.publisher.PublishState(desc.Key, current); err != nil {
			rt.logger.Warn("Failed to publish select state", zap.String("key", desc.Key), zap.Error(err))
		}
	}

	for _, desc := range switchDescriptions {
		state := "OFF"
		if desc.IsOnFn(*uc) {
			state = "ON"
		}
		if err := rt.publisher.PublishState(desc.Key, state); err != nil {
			rt.logger.Warn("Failed to publish switch state", zap.String("key", desc.Key), zap.Error(err))
		}
	}

	for _, desc := range numberDescriptions {
		if err := rt.publisher.PublishState(desc.Key, desc.ValueFn(*uc)); err != nil {
			rt.logger.Warn("Failed to publish number state", zap.String("key", desc.Key), zap.Error(err))
		}
	}
}

func (rt *Runtime) publishVersionState() {
	versions, ok := rt.Version.Data()
	if !ok {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"installed_version": versions.Current.Firmware,
		"latest_version":    versions.Available.Firmware,
	})
	if err != nil {
		rt.logger.Warn("Failed to encode firmware state", zap.Error(err))
		return
	}
	if err := rt.publisher.PublishState("firmware", string(payload)); err != nil {
		rt.logger.Warn("Failed to publish firmware state", zap.Error(err))
	}
}

// subscribeCommands wires inbound command topics to the write accessors.
// Each successful write forces one refresh of the owning coordinator so the
// platform sees the applied value without waiting for the next poll.
func (rt *Runtime) subscribeCommands() error {
	for _, desc := range selectDescriptions {
		desc := desc
		err := rt.publisher.Subscribe(rt.publisher.CommandTopic(desc.Key), func(payload []byte) {
			if err := rt.SelectOption(context.Background(), desc.Key, string(payload)); err != nil {
				rt.logger.Error("Select command failed",
					zap.String("key", desc.Key),
					zap.String("option", string(payload)),
					zap.Error(err),
				)
			}
		})
		if err != nil {
			return err
		}
	}

	for _, desc := range switchDescriptions {
		desc := desc
		err := rt.publisher.Subscribe(rt.publisher.CommandTopic(desc.Key), func(payload []byte) {
			on := string(payload) == "ON"
			if err := rt.setSwitch(context.Background(), desc, on); err != nil {
				rt.logger.Error("Switch command failed",
					zap.String("key", desc.Key),
					zap.Bool("on", on),
					zap.Error(err),
				)
			}
		})
		if err != nil {
			return err
		}
	}

	for _, desc := range numberDescriptions {
		desc := desc
		err := rt.publisher.Subscribe(rt.publisher.CommandTopic(desc.Key), func(payload []byte) {
			value, err := strconv.ParseInt(strings.TrimSpace(string(payload)), 10, 64)
			if err != nil {
				rt.logger.Warn("Invalid number payload",
					zap.String("key", desc.Key),
					zap.String("payload", string(payload)),
				)
				return
			}
			if err := rt.setNumber(context.Background(), desc, value); err != nil {
				rt.logger.Error("Number command failed",
					zap.String("key", desc.Key),
					zap.Int64("value", value),
					zap.Error(err),
				)
			}
		})
		if err != nil {
			return err
		}
	}

	for _, desc := range buttonDescriptions {
		desc := desc
		err := rt.publisher.Subscribe(rt.publisher.CommandTopic(desc.Key), func(payload []byte) {
			if err := rt.pressButton(context.Background(), desc); err != nil {
				rt.logger.Error("Button command failed", zap.String("key", desc.Key), zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// SelectOption applies an option to a select entity and forces one refresh
// of the user configuration coordinator. The option must be one of the
// entity's declared options.
func (rt *Runtime) SelectOption(ctx context.Context, key, option string) error {
	for _, desc := range selectDescriptions {
		if desc.Key != key {
			continue
		}

		valid := false
		for _, o := range desc.Options {
			if o == option {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid option %q for %s", option, key)
		}

		err := desc.SelectFn(ctx, rt.Client, option)
		metrics.ObserveWrite(key, err)
		if err != nil {
			return fmt.Errorf("failed to select %q: %w", option, err)
		}

		//nolint:errcheck // refresh failures keep the previous snapshot
		rt.UserConfig.Refresh(ctx)
		return nil
	}
	return fmt.Errorf("unknown select entity %q", key)
}

func (rt *Runtime) setSwitch(ctx context.Context, desc SwitchDescription, on bool) error {
	err := desc.SetFn(ctx, rt.Client, on)
	metrics.ObserveWrite(desc.Key, err)
	if err != nil {
		return err
	}

	//nolint:errcheck // refresh failures keep the previous snapshot
	rt.UserConfig.Refresh(ctx)
	return nil
}

func (rt *Runtime) setNumber(ctx context.Context, desc NumberDescription, value int64) error {
	if value < desc.Min || value > desc.Max {
		return fmt.Errorf("value %d outside range [%d, %d]", value, desc.Min, desc.Max)
	}

	err := desc.SetFn(ctx, rt.Client, value)
	metrics.ObserveWrite(desc.Key, err)
	if err != nil {
		return err
	}

	//nolint:errcheck // refresh failures keep the previous snapshot
	rt.UserConfig.Refresh(ctx)
	return nil
}

func (rt *Runtime) pressButton(ctx context.Context, desc ButtonDescription) error {
	err := desc.PressFn(ctx, rt.Client)
	metrics.ObserveWrite(desc.Key, err)
	return err
}

// Close tears the bridge down: coordinator loops stop first so no poll
// publishes after the entities are gone. In-flight polls finish but their
// results are discarded with the runtime.
func (rt *Runtime) Close() {
	if rt.cancel != nil {
		rt.cancel()
	}
	rt.Meter.Stop()
	rt.UserConfig.Stop()
	rt.Version.Stop()
	rt.logger.Info("Bridge closed")
}
