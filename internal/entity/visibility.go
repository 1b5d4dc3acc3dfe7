package entity

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DeviceParamRule scopes a parameter list to all device types starting with
// DeviceType (compared lower-case). Declaration order matters: the first
// matching rule wins.
type DeviceParamRule struct {
	DeviceType string
	Parameters []string
}

// MasterRule registers channels of a device-type prefix whose MASTER
// paramset must be loaded, together with the parameters exposed from it.
type MasterRule struct {
	DeviceType string
	Channels   []ChannelNo
	Parameters []string
}

// Rules is the static rule set injected into a Visibility engine. It is
// constructed once and never mutated afterwards; only the user override set
// loaded from the override file is mutable, and only during load.
type Rules struct {
	// IgnoredExact suppresses parameters by exact name.
	IgnoredExact []string

	// IgnoredSuffixes suppresses parameters whose name ends with one of
	// these fragments.
	IgnoredSuffixes []string

	// IgnoredPrefixes suppresses parameters whose name starts with one of
	// these fragments.
	IgnoredPrefixes []string

	// IgnoredByDevice suppresses a parameter on specific device-type
	// prefixes only.
	IgnoredByDevice map[string][]string

	// AcceptOnlyOnChannel restricts a parameter to a single channel; on
	// any other channel it is ignored.
	AcceptOnlyOnChannel map[string]ChannelNo

	// Required parameters are never suppressed by the name-based ignore
	// rules. Populated from the availability set plus every parameter a
	// registered template binds.
	Required []string

	// UnIgnoreByDevice force-creates parameters on matching device-type
	// prefixes that the name rules would otherwise suppress.
	UnIgnoreByDevice []DeviceParamRule

	// MasterRelevance pre-registers MASTER paramsets worth loading.
	MasterRelevance []MasterRule

	// Hidden marks always-technical parameters: the entity is created and
	// consumed internally but not shown to end users.
	Hidden []string
}

// RequireParameters appends names to the required set. Used to feed the
// parameters referenced by registered templates into the rule set before the
// engine is constructed.
func (r *Rules) RequireParameters(names ...string) {
	r.Required = append(r.Required, names...)
}

// RelevantInitParameters are the channel-0 availability parameters loaded
// eagerly for every device.
var RelevantInitParameters = []string{
	ParamConfigPending,
	ParamStickyUnreach,
	ParamUnreach,
}

// Well-known parameter names.
const (
	ParamConfigPending = "CONFIG_PENDING"
	ParamStickyUnreach = "STICKY_UNREACH"
	ParamUnreach       = "UNREACH"
	ParamLowBat        = "LOWBAT"
	ParamChannelOpMode = "CHANNEL_OPERATION_MODE"
)

// AllowedInternalParameters are internal-flagged parameters that still
// materialise without an un-ignore.
var AllowedInternalParameters = map[string]struct{}{
	"DIRECTION": {},
}

// DefaultRules returns the built-in rule tables. They describe the backend's
// common device families; installation-specific exceptions go into the
// override file.
func DefaultRules() Rules {
	return Rules{
		IgnoredExact: []string{
			"ACTIVITY_STATE",
			"AES_KEY",
			"BOOST_TIME",
			"CHILD_LOCK",
			"COMBINED_PARAMETER",
			"DECISION_VALUE",
			"DEVICE_IN_BOOTLOADER",
			"DEW_POINT_ALARM",
			"EMERGENCY_OPERATION",
			"EXTERNAL_TRANSMITTER_ADDRESS",
			"FROST_PROTECTION",
			"HUMIDITY_LIMITER",
			"INCLUSION_UNSUPPORTED_DEVICE",
			"INHIBIT",
			"INSTALL_MODE",
			"LEVEL_COMBINED",
			"LEVEL_REAL",
			"OLD_LEVEL",
			"ON_TIME",
			"PARTY_SET_POINT_TEMPERATURE",
			"PARTY_TEMPERATURE",
			"PARTY_TIME_END",
			"PARTY_TIME_START",
			"PROCESS",
			"QUICK_VETO_TIME",
			"RAMP_STOP",
			"RELOCK_DELAY",
			"SECTION",
			"SELF_CALIBRATION",
			"SENSOR_ERROR",
			"SET_SYMBOL_FOR_HEATING_PHASE",
			"SMOKE_DETECTOR_COMMAND",
			"STATE_UNCERTAIN",
			"SWITCH_POINT_OCCURED",
			"TEMPERATURE_LIMITER",
			"TEMPERATURE_OUT_OF_RANGE",
			"TIME_OF_OPERATION",
			"WOCHENPROGRAMM",
		},
		IgnoredSuffixes: []string{
			"OVERFLOW",
			"OVERHEAT",
			"OVERRUN",
			"REPORTING",
			"RESULT",
			"STATUS",
			"SUBMIT",
			"WORKING",
		},
		IgnoredPrefixes: []string{
			"ADJUSTING",
			"ERR_TTM",
			"ERROR",
			"IDENTIFICATION_MODE_KEY_VISUAL",
			"IDENTIFY_",
			"PARTY_START",
			"PARTY_STOP",
			"STATUS_FLAG",
			"WEEK_PROGRAM",
		},
		IgnoredByDevice: map[string][]string{
			"CURRENT_ILLUMINATION": {"HmIP-SMI", "HmIP-SMO", "HmIP-SPI"},
			ParamLowBat:            {"HM-CC-VD", "HM-Sec-RHS", "HM-Sec-SC", "HM-SwI-3-FM", "HM-LC-Sw1-FM"},
			"OPERATING_VOLTAGE":    {"ELV-SH-BS2", "HmIP-BS2", "HmIP-BDT", "HmIP-FDT", "HmIP-FSM", "HmIP-MOD-OC8", "HmIP-PCBS", "HmIP-PDT", "HmIP-PS", "HmIP-SFD"},
		},
		AcceptOnlyOnChannel: map[string]ChannelNo{
			ParamLowBat: 0,
		},
		Required: append([]string(nil), RelevantInitParameters...),
		UnIgnoreByDevice: []DeviceParamRule{
			{DeviceType: "DLD", Parameters: []string{"ERROR_JAMMED"}},
			{DeviceType: "HM-Sec-Key", Parameters: []string{"DIRECTION", "ERROR"}},
			{DeviceType: "HM-Sec-Win", Parameters: []string{"DIRECTION", "WORKING", "ERROR", "STATUS"}},
			{DeviceType: "HmIP-PCBS-BAT", Parameters: []string{"OPERATING_VOLTAGE", "LOW_BAT"}},
		},
		MasterRelevance: []MasterRule{
			{DeviceType: "HmIP-DRBLI4", Channels: []ChannelNo{9, 13, 17, 21}, Parameters: []string{ParamChannelOpMode}},
			{DeviceType: "HmIP-DRDI3", Channels: []ChannelNo{1, 2, 3}, Parameters: []string{ParamChannelOpMode}},
			{DeviceType: "HmIP-DRSI1", Channels: []ChannelNo{1}, Parameters: []string{ParamChannelOpMode}},
			{DeviceType: "HmIP-DRSI4", Channels: []ChannelNo{1, 2, 3, 4}, Parameters: []string{ParamChannelOpMode}},
			{DeviceType: "HmIP-DSD-PCB", Channels: []ChannelNo{1}, Parameters: []string{ParamChannelOpMode}},
			{DeviceType: "HmIP-FCI1", Channels: []ChannelNo{1}, Parameters: []string{ParamChannelOpMode}},
			{DeviceType: "HmIP-FCI6", Channels: []ChannelNo{1, 2, 3, 4, 5, 6}, Parameters: []string{ParamChannelOpMode}},
			{DeviceType: "HmIPW-DRBL4", Channels: []ChannelNo{1, 5, 9, 13}, Parameters: []string{ParamChannelOpMode}},
			{DeviceType: "HmIPW-DRI16", Channels: []ChannelNo{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, Parameters: []string{ParamChannelOpMode}},
			{DeviceType: "HmIPW-DRI32", Channels: []ChannelNo{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32}, Parameters: []string{ParamChannelOpMode}},
			{DeviceType: "HmIPW-FIO6", Channels: []ChannelNo{1, 2, 3, 4, 5, 6}, Parameters: []string{ParamChannelOpMode}},
		},
		Hidden: []string{
			ParamConfigPending,
			"ERROR",
			ParamStickyUnreach,
			ParamUnreach,
			"UPDATE_PENDING",
			ParamChannelOpMode,
			"ACTIVITY_STATE",
			"DIRECTION",
		},
	}
}

// customKey scopes a user override to one exact device/channel/paramset.
type customKey struct {
	deviceType string
	channel    ChannelNo
	paramset   ParamsetKey
	parameter  string
}

// masterEntry is one registered MASTER-relevant device prefix.
type masterEntry struct {
	devicePrefix string
	channels     map[ChannelNo]map[string]struct{}
}

// Visibility decides whether a parameter may become an entity at all and
// how it is exposed. The static rule tables never change after construction;
// LoadOverrideFile extends the override set once at startup.
//
// Thread Safety:
//   - Lookup methods are safe for concurrent use once loading is done.
//   - LoadOverrideFile must complete before concurrent lookups begin.
type Visibility struct {
	log Logger

	ignoredExact    map[string]struct{}
	ignoredSuffixes []string
	ignoredPrefixes []string
	ignoredByDevice map[string][]string
	acceptOnly      map[string]ChannelNo
	required        map[string]struct{}
	unIgnoreDevice  []DeviceParamRule
	hidden          map[string]struct{}

	mu             sync.RWMutex
	globalUnignore map[ParamsetKey]map[string]struct{}
	customUnignore map[customKey]struct{}
	masterRules    []*masterEntry
}

// NewVisibility constructs the engine from a static rule set.
func NewVisibility(rules Rules, log Logger) *Visibility {
	if log == nil {
		log = noopLogger{}
	}

	v := &Visibility{
		log:             log,
		ignoredExact:    toSet(rules.IgnoredExact),
		ignoredSuffixes: append([]string(nil), rules.IgnoredSuffixes...),
		ignoredPrefixes: append([]string(nil), rules.IgnoredPrefixes...),
		ignoredByDevice: make(map[string][]string, len(rules.IgnoredByDevice)),
		acceptOnly:      make(map[string]ChannelNo, len(rules.AcceptOnlyOnChannel)),
		required:        toSet(rules.Required),
		hidden:          toSet(rules.Hidden),
		globalUnignore: map[ParamsetKey]map[string]struct{}{
			ParamsetValues: {},
			ParamsetMaster: {},
		},
		customUnignore: make(map[customKey]struct{}),
	}

	// Device-type keys are matched case-insensitively; fold them once.
	for param, devices := range rules.IgnoredByDevice {
		lowered := make([]string, len(devices))
		for i, d := range devices {
			lowered[i] = strings.ToLower(d)
		}
		v.ignoredByDevice[param] = lowered
	}

	for param, ch := range rules.AcceptOnlyOnChannel {
		v.acceptOnly[param] = ch
	}

	for _, rule := range rules.UnIgnoreByDevice {
		v.unIgnoreDevice = append(v.unIgnoreDevice, DeviceParamRule{
			DeviceType: strings.ToLower(rule.DeviceType),
			Parameters: append([]string(nil), rule.Parameters...),
		})
	}

	for _, rule := range rules.MasterRelevance {
		entry := &masterEntry{
			devicePrefix: strings.ToLower(rule.DeviceType),
			channels:     make(map[ChannelNo]map[string]struct{}, len(rule.Channels)),
		}
		for _, ch := range rule.Channels {
			entry.channels[ch] = toSet(rule.Parameters)
		}
		v.masterRules = append(v.masterRules, entry)
	}

	return v
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// IsIgnored reports whether the parameter must not produce any entity.
//
// Un-ignore overrides always win for VALUES parameters. MASTER parameters
// are suppressed unless the device/channel pair was registered as
// MASTER-relevant or the user un-ignored the exact tuple.
func (v *Visibility) IsIgnored(deviceType string, channel ChannelNo, paramset ParamsetKey, parameter string) bool {
	dt := strings.ToLower(deviceType)

	if paramset == ParamsetValues && v.IsUnIgnored(deviceType, channel, paramset, parameter) {
		return false
	}

	if v.nameIgnored(dt, parameter) {
		if _, required := v.required[parameter]; !required {
			return true
		}
	}

	// The name-based ignore check above runs first and short-circuits:
	// a device-scoped ignore entry beats any channel-acceptance rule for
	// the same parameter name.
	if accepted, ok := v.acceptOnly[parameter]; ok && channel != accepted {
		return true
	}

	if paramset == ParamsetMaster {
		v.mu.RLock()
		defer v.mu.RUnlock()

		if _, ok := v.customUnignore[customKey{dt, channel, ParamsetMaster, parameter}]; ok {
			return false
		}
		if entry := v.masterRuleFor(dt); entry != nil {
			if params, ok := entry.channels[channel]; ok {
				if _, ok := params[parameter]; ok {
					return false
				}
			}
		}
		return true
	}

	return false
}

func (v *Visibility) nameIgnored(deviceTypeLower, parameter string) bool {
	if _, ok := v.ignoredExact[parameter]; ok {
		return true
	}
	for _, suffix := range v.ignoredSuffixes {
		if strings.HasSuffix(parameter, suffix) {
			return true
		}
	}
	for _, prefix := range v.ignoredPrefixes {
		if strings.HasPrefix(parameter, prefix) {
			return true
		}
	}
	for _, devPrefix := range v.ignoredByDevice[parameter] {
		if strings.HasPrefix(deviceTypeLower, devPrefix) {
			return true
		}
	}
	return false
}

// IsUnIgnored reports whether an override forces entity creation for the
// parameter. Matches, in order: a global paramset-scoped override, a user
// override scoped to the exact device/channel/paramset, and the predefined
// per-device-type list matched by case-insensitive device-type prefix.
func (v *Visibility) IsUnIgnored(deviceType string, channel ChannelNo, paramset ParamsetKey, parameter string) bool {
	dt := strings.ToLower(deviceType)

	v.mu.RLock()
	if params, ok := v.globalUnignore[paramset]; ok {
		if _, ok := params[parameter]; ok {
			v.mu.RUnlock()
			return true
		}
	}
	if _, ok := v.customUnignore[customKey{dt, channel, paramset, parameter}]; ok {
		v.mu.RUnlock()
		return true
	}
	// Registered MASTER-relevant parameters count as un-ignored, otherwise
	// the read-only gate in materialization would drop them again.
	if paramset == ParamsetMaster {
		if entry := v.masterRuleFor(dt); entry != nil {
			if params, ok := entry.channels[channel]; ok {
				if _, ok := params[parameter]; ok {
					v.mu.RUnlock()
					return true
				}
			}
		}
	}
	v.mu.RUnlock()

	for _, rule := range v.unIgnoreDevice {
		if !strings.HasPrefix(dt, rule.DeviceType) {
			continue
		}
		for _, p := range rule.Parameters {
			if p == parameter {
				return true
			}
		}
		// First matching device rule wins.
		break
	}

	return false
}

// IsHidden reports whether the entity should be created but withheld from
// end-user display. An explicit un-ignore makes a hidden parameter visible.
func (v *Visibility) IsHidden(deviceType string, channel ChannelNo, paramset ParamsetKey, parameter string) bool {
	if _, ok := v.hidden[parameter]; !ok {
		return false
	}
	return !v.IsUnIgnored(deviceType, channel, paramset, parameter)
}

// IsRelevantParamset reports whether the paramset is worth loading for the
// channel. VALUES always is; MASTER only when the device/channel pair is
// registered, because unregistered MASTER paramsets are never fetched.
func (v *Visibility) IsRelevantParamset(deviceType string, paramset ParamsetKey, channel ChannelNo) bool {
	if paramset == ParamsetValues {
		return true
	}
	if paramset != ParamsetMaster || channel == NoChannel {
		return false
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	entry := v.masterRuleFor(strings.ToLower(deviceType))
	if entry == nil {
		return false
	}
	_, ok := entry.channels[channel]
	return ok
}

// masterRuleFor returns the first registered MASTER rule whose device-type
// prefix matches. Caller holds at least a read lock.
func (v *Visibility) masterRuleFor(deviceTypeLower string) *masterEntry {
	for _, entry := range v.masterRules {
		if strings.HasPrefix(deviceTypeLower, entry.devicePrefix) {
			return entry
		}
	}
	return nil
}

// LoadOverrideFile loads the user override file. A missing file is not an
// error; malformed lines are logged and skipped, never fatal.
func (v *Visibility) LoadOverrideFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			v.log.Debug("no override file present", "path", path)
			return nil
		}
		return err
	}
	defer f.Close()

	v.LoadOverrides(f)
	v.log.Info("override file loaded", "path", path)
	return nil
}

// LoadOverrides reads override lines from r, one per line. A '#' anywhere
// in a line comments out the whole line.
func (v *Visibility) LoadOverrides(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v.applyOverride(line)
	}
}

// applyOverride parses one override line. Grammar:
//
//	PARAMETER@DEVICETYPE:CHANNEL:PARAMSETKEY  scoped to one device/channel/paramset
//	PARAMSETKEY:PARAMETER                     global for one paramset
//	PARAMETER:PARAMSETKEY                     same, reversed order
//	PARAMETER                                 global for VALUES
func (v *Visibility) applyOverride(line string) {
	switch strings.Count(line, "@") {
	case 0:
		// Global forms.
	case 1:
		v.applyScopedOverride(line)
		return
	default:
		v.log.Warn("skipping malformed override line", "line", line)
		return
	}

	if !strings.Contains(line, ":") {
		v.addGlobalUnignore(ParamsetValues, line)
		return
	}

	parts := strings.Split(line, ":")
	if len(parts) != 2 {
		v.log.Warn("skipping malformed override line", "line", line)
		return
	}

	// The paramset key may sit on either side; the other token is the
	// parameter name.
	if ps := ParamsetKey(parts[0]); ps == ParamsetValues || ps == ParamsetMaster {
		v.addGlobalUnignore(ps, parts[1])
		return
	}
	if ps := ParamsetKey(parts[1]); ps == ParamsetValues || ps == ParamsetMaster {
		v.addGlobalUnignore(ps, parts[0])
		return
	}
	// Unknown paramset keys are silently not applied.
}

func (v *Visibility) applyScopedOverride(line string) {
	atParts := strings.Split(line, "@")
	parameter, scope := atParts[0], atParts[1]

	fields := strings.Split(scope, ":")
	if len(fields) != 3 || parameter == "" {
		v.log.Warn("skipping malformed override line", "line", line)
		return
	}

	channelNo, err := strconv.Atoi(fields[1])
	if err != nil {
		v.log.Warn("skipping malformed override line", "line", line)
		return
	}

	paramset := ParamsetKey(fields[2])
	if paramset != ParamsetValues && paramset != ParamsetMaster {
		v.log.Warn("skipping malformed override line", "line", line)
		return
	}

	dt := strings.ToLower(fields[0])
	channel := ChannelNo(channelNo)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.customUnignore[customKey{dt, channel, paramset, parameter}] = struct{}{}

	// A MASTER-scoped override implies the paramset must be fetched, so
	// the device/channel pair is registered as MASTER-relevant too.
	if paramset == ParamsetMaster {
		entry := v.masterRuleFor(dt)
		if entry == nil || entry.devicePrefix != dt {
			entry = &masterEntry{
				devicePrefix: dt,
				channels:     make(map[ChannelNo]map[string]struct{}),
			}
			v.masterRules = append(v.masterRules, entry)
		}
		if entry.channels[channel] == nil {
			entry.channels[channel] = make(map[string]struct{})
		}
		entry.channels[channel][parameter] = struct{}{}
	}
}

func (v *Visibility) addGlobalUnignore(paramset ParamsetKey, parameter string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.globalUnignore[paramset][parameter] = struct{}{}
}
