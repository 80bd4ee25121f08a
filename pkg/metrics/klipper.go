package metrics

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mamalluca/mamalluca-go/pkg/status"
)

// mcuStatFields are the numeric members of mcu.last_stats that are exported.
var mcuStatFields = []string{
	"adj", "freq", "mcu_awake", "mcu_task_avg", "mcu_task_stddev",
	"bytes_read", "bytes_write", "bytes_invalid", "bytes_retransmit",
	"ready_bytes", "upcoming_bytes",
	"send_seq", "receive_seq", "retransmit_seq",
	"srtt", "rto", "rttvar",
}

var (
	printStates   = []string{"standby", "printing", "paused", "complete", "cancelled", "error"}
	idleStates    = []string{"Idle", "Printing", "Ready"}
	webhookStates = []string{"ready", "startup", "shutdown", "error"}
	axes          = []string{"x", "y", "z", "e"}
)

type mcuMetrics struct {
	stats map[string]*prometheus.GaugeVec
}

type heaterMetrics struct {
	temperature     *prometheus.GaugeVec
	target          *prometheus.GaugeVec
	power           *prometheus.GaugeVec
	pressureAdvance *prometheus.GaugeVec
	smoothTime      *prometheus.GaugeVec
	canExtrude      *prometheus.GaugeVec
}

type sensorMetrics struct {
	temperature *prometheus.GaugeVec
	measuredMin *prometheus.GaugeVec
	measuredMax *prometheus.GaugeVec
	fanTemp     *prometheus.GaugeVec
	fanTarget   *prometheus.GaugeVec
}

type fanMetrics struct {
	speed *prometheus.GaugeVec
	rpm   *prometheus.GaugeVec
}

type tmcMetrics struct {
	temperature *prometheus.GaugeVec
	runCurrent  *prometheus.GaugeVec
	holdCurrent *prometheus.GaugeVec
	drvFlags    *prometheus.GaugeVec
}

type filamentMetrics struct {
	enabled  *prometheus.GaugeVec
	detected *prometheus.GaugeVec
}

type toolheadMetrics struct {
	position             *prometheus.GaugeVec
	maxVelocity          *prometheus.GaugeVec
	maxAccel             *prometheus.GaugeVec
	squareCornerVelocity *prometheus.GaugeVec
	homedAxes            *prometheus.GaugeVec
	printTime            *prometheus.GaugeVec
	estimatedPrintTime   *prometheus.GaugeVec
}

type gcodeMoveMetrics struct {
	speed         *prometheus.GaugeVec
	speedFactor   *prometheus.GaugeVec
	extrudeFactor *prometheus.GaugeVec
}

type motionMetrics struct {
	position         *prometheus.GaugeVec
	velocity         *prometheus.GaugeVec
	extruderVelocity *prometheus.GaugeVec
}

type printMetrics struct {
	printDuration *prometheus.GaugeVec
	totalDuration *prometheus.GaugeVec
	filamentUsed  *prometheus.GaugeVec
	state         *prometheus.GaugeVec
	currentLayer  *prometheus.GaugeVec
	totalLayer    *prometheus.GaugeVec
}

type sdcardMetrics struct {
	progress     *prometheus.GaugeVec
	filePosition *prometheus.GaugeVec
	fileSize     *prometheus.GaugeVec
	active       *prometheus.GaugeVec
}

type miscMetrics struct {
	paused          *prometheus.GaugeVec
	probeZ          *prometheus.GaugeVec
	probeOffset     *prometheus.GaugeVec
	zTiltApplied    *prometheus.GaugeVec
	zThermalTemp    *prometheus.GaugeVec
	zThermalAdjust  *prometheus.GaugeVec
	idlePrintTime   *prometheus.GaugeVec
	idleState       *prometheus.GaugeVec
	sysload         *prometheus.GaugeVec
	cputime         *prometheus.GaugeVec
	memavail        *prometheus.GaugeVec
	webhooksState   *prometheus.GaugeVec
	objects         *prometheus.GaugeVec
	excludedObjects *prometheus.GaugeVec
	displayProgress *prometheus.GaugeVec
}

func (p *Projection) registerKlipper() {
	p.mcu.stats = make(map[string]*prometheus.GaugeVec, len(mcuStatFields))
	for _, f := range mcuStatFields {
		p.mcu.stats[f] = p.gauge("klipper_mcu_"+f, "MCU last_stats."+f+".")
	}

	p.heater = heaterMetrics{
		temperature:     p.gauge("klipper_heater_temperature_celsius", "Heater temperature.", "kind", "name"),
		target:          p.gauge("klipper_heater_target_celsius", "Heater target temperature.", "kind", "name"),
		power:           p.gauge("klipper_heater_power_ratio", "Heater PWM duty cycle.", "kind", "name"),
		pressureAdvance: p.gauge("klipper_extruder_pressure_advance", "Extruder pressure advance.", "name"),
		smoothTime:      p.gauge("klipper_extruder_smooth_time_seconds", "Extruder pressure advance smooth time.", "name"),
		canExtrude:      p.gauge("klipper_extruder_can_extrude", "1 if the extruder is hot enough to extrude.", "name"),
	}

	p.sensor = sensorMetrics{
		temperature: p.gauge("klipper_temperature_sensor_celsius", "Temperature sensor reading.", "name"),
		measuredMin: p.gauge("klipper_temperature_sensor_measured_min_celsius", "Lowest temperature seen.", "name"),
		measuredMax: p.gauge("klipper_temperature_sensor_measured_max_celsius", "Highest temperature seen.", "name"),
		fanTemp:     p.gauge("klipper_temperature_fan_celsius", "Temperature fan sensor reading.", "name"),
		fanTarget:   p.gauge("klipper_temperature_fan_target_celsius", "Temperature fan target.", "name"),
	}

	p.fan = fanMetrics{
		speed: p.gauge("klipper_fan_speed_ratio", "Fan speed.", "kind", "name"),
		rpm:   p.gauge("klipper_fan_rpm", "Fan tachometer reading.", "kind", "name"),
	}

	p.tmc = tmcMetrics{
		temperature: p.gauge("klipper_tmc_temperature_celsius", "Stepper driver temperature.", "driver", "name"),
		runCurrent:  p.gauge("klipper_tmc_run_current_amperes", "Stepper driver run current.", "driver", "name"),
		holdCurrent: p.gauge("klipper_tmc_hold_current_amperes", "Stepper driver hold current.", "driver", "name"),
		drvFlags:    p.gauge("klipper_tmc_drv_status_flags", "Number of flags set in drv_status.", "driver", "name"),
	}

	p.stepper = p.gauge("klipper_stepper_enabled", "1 if the stepper motor is enabled.", "stepper")

	p.filament = filamentMetrics{
		enabled:  p.gauge("klipper_filament_sensor_enabled", "1 if the filament sensor is enabled.", "kind", "name"),
		detected: p.gauge("klipper_filament_sensor_detected", "1 if filament is detected.", "kind", "name"),
	}

	p.toolhead = toolheadMetrics{
		position:             p.gauge("klipper_toolhead_position", "Commanded toolhead position.", "axis"),
		maxVelocity:          p.gauge("klipper_toolhead_max_velocity", "Maximum velocity in mm/s."),
		maxAccel:             p.gauge("klipper_toolhead_max_accel", "Maximum acceleration in mm/s^2."),
		squareCornerVelocity: p.gauge("klipper_toolhead_square_corner_velocity", "Square corner velocity in mm/s."),
		homedAxes:            p.gauge("klipper_toolhead_homed_axes", "Number of homed axes."),
		printTime:            p.gauge("klipper_toolhead_print_time_seconds", "Toolhead print time."),
		estimatedPrintTime:   p.gauge("klipper_toolhead_estimated_print_time_seconds", "Estimated toolhead print time."),
	}

	p.gcodeMove = gcodeMoveMetrics{
		speed:         p.gauge("klipper_gcode_move_speed", "Current G-code speed."),
		speedFactor:   p.gauge("klipper_gcode_move_speed_factor", "Speed factor override."),
		extrudeFactor: p.gauge("klipper_gcode_move_extrude_factor", "Extrude factor override."),
	}

	p.motion = motionMetrics{
		position:         p.gauge("klipper_motion_report_live_position", "Live toolhead position.", "axis"),
		velocity:         p.gauge("klipper_motion_report_live_velocity", "Live toolhead velocity in mm/s."),
		extruderVelocity: p.gauge("klipper_motion_report_live_extruder_velocity", "Live extruder velocity in mm/s."),
	}

	p.print = printMetrics{
		printDuration: p.gauge("klipper_print_stats_print_duration_seconds", "Time spent printing the current job."),
		totalDuration: p.gauge("klipper_print_stats_total_duration_seconds", "Total time of the current job."),
		filamentUsed:  p.gauge("klipper_print_stats_filament_used_millimeters", "Filament used by the current job."),
		state:         p.gauge("klipper_print_stats_state", "1 for the current print state.", "state"),
		currentLayer:  p.gauge("klipper_print_stats_current_layer", "Current layer."),
		totalLayer:    p.gauge("klipper_print_stats_total_layer", "Total layers."),
	}

	p.sdcard = sdcardMetrics{
		progress:     p.gauge("klipper_virtual_sdcard_progress_ratio", "Print file progress."),
		filePosition: p.gauge("klipper_virtual_sdcard_file_position_bytes", "Position in the print file."),
		fileSize:     p.gauge("klipper_virtual_sdcard_file_size_bytes", "Size of the print file."),
		active:       p.gauge("klipper_virtual_sdcard_active", "1 if a file is being printed."),
	}

	p.misc = miscMetrics{
		paused:          p.gauge("klipper_pause_resume_paused", "1 if the print is paused."),
		probeZ:          p.gauge("klipper_probe_last_z_result", "Z result of the last probe."),
		probeOffset:     p.gauge("klipper_probe_z_offset", "Probe z offset."),
		zTiltApplied:    p.gauge("klipper_z_tilt_applied", "1 if z tilt adjustment has been applied."),
		zThermalTemp:    p.gauge("klipper_z_thermal_adjust_temperature_celsius", "Z thermal adjust sensor reading."),
		zThermalAdjust:  p.gauge("klipper_z_thermal_adjust_current_z_adjust", "Current z adjustment."),
		idlePrintTime:   p.gauge("klipper_idle_timeout_printing_time_seconds", "Time spent in the Printing state."),
		idleState:       p.gauge("klipper_idle_timeout_state", "1 for the current idle timeout state.", "state"),
		sysload:         p.gauge("klipper_system_stats_sysload", "Host load average."),
		cputime:         p.gauge("klipper_system_stats_cputime_seconds", "Klippy process CPU time."),
		memavail:        p.gauge("klipper_system_stats_memavail_kibibytes", "Host available memory."),
		webhooksState:   p.gauge("klipper_state", "1 for the current Klippy state.", "state"),
		objects:         p.gauge("klipper_exclude_object_objects", "Number of known print objects."),
		excludedObjects: p.gauge("klipper_exclude_object_excluded_objects", "Number of excluded print objects."),
		displayProgress: p.gauge("klipper_display_status_progress_ratio", "Progress reported by M73 or the virtual sdcard."),
	}

	p.decoder = map[status.Kind]decodeFunc{
		status.KindMCU:                  decodeMCU,
		status.KindExtruder:             decodeHeater,
		status.KindHeaterBed:            decodeHeater,
		status.KindTemperatureSensor:    decodeTemperatureSensor,
		status.KindTemperatureFan:       decodeTemperatureFan,
		status.KindFan:                  decodeFan,
		status.KindFanGeneric:           decodeFan,
		status.KindHeaterFan:            decodeFan,
		status.KindControllerFan:        decodeFan,
		status.KindTMC2130:              decodeTMC,
		status.KindTMC2208:              decodeTMC,
		status.KindTMC2209:              decodeTMC,
		status.KindTMC2240:              decodeTMC,
		status.KindTMC2660:              decodeTMC,
		status.KindTMC5160:              decodeTMC,
		status.KindStepperEnable:        decodeStepperEnable,
		status.KindFilamentMotionSensor: decodeFilamentSensor,
		status.KindFilamentSwitchSensor: decodeFilamentSensor,
		status.KindToolhead:             decodeToolhead,
		status.KindGCodeMove:            decodeGCodeMove,
		status.KindMotionReport:         decodeMotionReport,
		status.KindPrintStats:           decodePrintStats,
		status.KindVirtualSDCard:        decodeVirtualSDCard,
		status.KindPauseResume:          decodePauseResume,
		status.KindProbe:                decodeProbe,
		status.KindZTilt:                decodeZTilt,
		status.KindZThermalAdjust:       decodeZThermalAdjust,
		status.KindIdleTimeout:          decodeIdleTimeout,
		status.KindSystemStats:          decodeSystemStats,
		status.KindWebhooks:             decodeWebhooks,
		status.KindExcludeObject:        decodeExcludeObject,
		status.KindDisplayStatus:        decodeDisplayStatus,
		status.KindMoonraker:            decodeMoonraker,
	}
}

func decodeInto(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func decodeMCU(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		LastStats map[string]json.RawMessage `json:"last_stats"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	for name, v := range s.LastStats {
		g, ok := p.mcu.stats[name]
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return fmt.Errorf("last_stats.%s: %w", name, err)
		}
		g.WithLabelValues().Set(f)
	}
	return nil
}

func decodeHeater(p *Projection, key status.Key, raw json.RawMessage) error {
	var s struct {
		Temperature     *float64 `json:"temperature"`
		Target          *float64 `json:"target"`
		Power           *float64 `json:"power"`
		PressureAdvance *float64 `json:"pressure_advance"`
		SmoothTime      *float64 `json:"smooth_time"`
		CanExtrude      *bool    `json:"can_extrude"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	kind, name := key.Kind.String(), key.Instance()
	set(p.heater.temperature, s.Temperature, kind, name)
	set(p.heater.target, s.Target, kind, name)
	set(p.heater.power, s.Power, kind, name)
	if key.Kind == status.KindExtruder {
		set(p.heater.pressureAdvance, s.PressureAdvance, name)
		set(p.heater.smoothTime, s.SmoothTime, name)
		setBool(p.heater.canExtrude, s.CanExtrude, name)
	}
	return nil
}

func decodeTemperatureSensor(p *Projection, key status.Key, raw json.RawMessage) error {
	var s struct {
		Temperature *float64 `json:"temperature"`
		MeasuredMin *float64 `json:"measured_min_temp"`
		MeasuredMax *float64 `json:"measured_max_temp"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	set(p.sensor.temperature, s.Temperature, key.Name)
	set(p.sensor.measuredMin, s.MeasuredMin, key.Name)
	set(p.sensor.measuredMax, s.MeasuredMax, key.Name)
	return nil
}

func decodeTemperatureFan(p *Projection, key status.Key, raw json.RawMessage) error {
	var s struct {
		Temperature *float64 `json:"temperature"`
		Target      *float64 `json:"target"`
		Speed       *float64 `json:"speed"`
		RPM         *float64 `json:"rpm"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	set(p.sensor.fanTemp, s.Temperature, key.Name)
	set(p.sensor.fanTarget, s.Target, key.Name)
	set(p.fan.speed, s.Speed, key.Kind.String(), key.Name)
	set(p.fan.rpm, s.RPM, key.Kind.String(), key.Name)
	return nil
}

func decodeFan(p *Projection, key status.Key, raw json.RawMessage) error {
	var s struct {
		Speed *float64 `json:"speed"`
		RPM   *float64 `json:"rpm"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	set(p.fan.speed, s.Speed, key.Kind.String(), key.Instance())
	set(p.fan.rpm, s.RPM, key.Kind.String(), key.Instance())
	return nil
}

func decodeTMC(p *Projection, key status.Key, raw json.RawMessage) error {
	var s struct {
		Temperature *float64                   `json:"temperature"`
		RunCurrent  *float64                   `json:"run_current"`
		HoldCurrent *float64                   `json:"hold_current"`
		DrvStatus   map[string]json.RawMessage `json:"drv_status"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	driver := key.Kind.String()
	set(p.tmc.temperature, s.Temperature, driver, key.Name)
	set(p.tmc.runCurrent, s.RunCurrent, driver, key.Name)
	set(p.tmc.holdCurrent, s.HoldCurrent, driver, key.Name)
	p.tmc.drvFlags.WithLabelValues(driver, key.Name).Set(float64(len(s.DrvStatus)))
	return nil
}

func decodeStepperEnable(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		Steppers map[string]bool `json:"steppers"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	for name, enabled := range s.Steppers {
		p.stepper.WithLabelValues(name).Set(boolValue(enabled))
	}
	return nil
}

func decodeFilamentSensor(p *Projection, key status.Key, raw json.RawMessage) error {
	var s struct {
		Enabled  *bool `json:"enabled"`
		Detected *bool `json:"filament_detected"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	setBool(p.filament.enabled, s.Enabled, key.Kind.String(), key.Name)
	setBool(p.filament.detected, s.Detected, key.Kind.String(), key.Name)
	return nil
}

func setAxes(v *prometheus.GaugeVec, pos []float64) {
	for i, f := range pos {
		if i >= len(axes) {
			break
		}
		v.WithLabelValues(axes[i]).Set(f)
	}
}

func decodeToolhead(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		Position             []float64 `json:"position"`
		MaxVelocity          *float64  `json:"max_velocity"`
		MaxAccel             *float64  `json:"max_accel"`
		SquareCornerVelocity *float64  `json:"square_corner_velocity"`
		HomedAxes            *string   `json:"homed_axes"`
		PrintTime            *float64  `json:"print_time"`
		EstimatedPrintTime   *float64  `json:"estimated_print_time"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	setAxes(p.toolhead.position, s.Position)
	set(p.toolhead.maxVelocity, s.MaxVelocity)
	set(p.toolhead.maxAccel, s.MaxAccel)
	set(p.toolhead.squareCornerVelocity, s.SquareCornerVelocity)
	set(p.toolhead.printTime, s.PrintTime)
	set(p.toolhead.estimatedPrintTime, s.EstimatedPrintTime)
	if s.HomedAxes != nil {
		p.toolhead.homedAxes.WithLabelValues().Set(float64(len(*s.HomedAxes)))
	}
	return nil
}

func decodeGCodeMove(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		Speed         *float64 `json:"speed"`
		SpeedFactor   *float64 `json:"speed_factor"`
		ExtrudeFactor *float64 `json:"extrude_factor"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	set(p.gcodeMove.speed, s.Speed)
	set(p.gcodeMove.speedFactor, s.SpeedFactor)
	set(p.gcodeMove.extrudeFactor, s.ExtrudeFactor)
	return nil
}

func decodeMotionReport(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		LivePosition         []float64 `json:"live_position"`
		LiveVelocity         *float64  `json:"live_velocity"`
		LiveExtruderVelocity *float64  `json:"live_extruder_velocity"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	setAxes(p.motion.position, s.LivePosition)
	set(p.motion.velocity, s.LiveVelocity)
	set(p.motion.extruderVelocity, s.LiveExtruderVelocity)
	return nil
}

func decodePrintStats(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		PrintDuration *float64 `json:"print_duration"`
		TotalDuration *float64 `json:"total_duration"`
		FilamentUsed  *float64 `json:"filament_used"`
		State         string   `json:"state"`
		Info          struct {
			CurrentLayer *float64 `json:"current_layer"`
			TotalLayer   *float64 `json:"total_layer"`
		} `json:"info"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	set(p.print.printDuration, s.PrintDuration)
	set(p.print.totalDuration, s.TotalDuration)
	set(p.print.filamentUsed, s.FilamentUsed)
	set(p.print.currentLayer, s.Info.CurrentLayer)
	set(p.print.totalLayer, s.Info.TotalLayer)
	if s.State != "" {
		setEnum(p.print.state, printStates, s.State)
	}
	return nil
}

func decodeVirtualSDCard(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		Progress     *float64 `json:"progress"`
		FilePosition *float64 `json:"file_position"`
		FileSize     *float64 `json:"file_size"`
		IsActive     *bool    `json:"is_active"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	set(p.sdcard.progress, s.Progress)
	set(p.sdcard.filePosition, s.FilePosition)
	set(p.sdcard.fileSize, s.FileSize)
	setBool(p.sdcard.active, s.IsActive)
	return nil
}

func decodePauseResume(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		IsPaused *bool `json:"is_paused"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	setBool(p.misc.paused, s.IsPaused)
	return nil
}

func decodeProbe(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		LastZResult *float64 `json:"last_z_result"`
		ZOffset     *float64 `json:"z_offset"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	set(p.misc.probeZ, s.LastZResult)
	set(p.misc.probeOffset, s.ZOffset)
	return nil
}

func decodeZTilt(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		Applied *bool `json:"applied"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	setBool(p.misc.zTiltApplied, s.Applied)
	return nil
}

func decodeZThermalAdjust(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		Temperature    *float64 `json:"temperature"`
		CurrentZAdjust *float64 `json:"current_z_adjust"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	set(p.misc.zThermalTemp, s.Temperature)
	set(p.misc.zThermalAdjust, s.CurrentZAdjust)
	return nil
}

func decodeIdleTimeout(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		State        string   `json:"state"`
		PrintingTime *float64 `json:"printing_time"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	set(p.misc.idlePrintTime, s.PrintingTime)
	if s.State != "" {
		setEnum(p.misc.idleState, idleStates, s.State)
	}
	return nil
}

func decodeSystemStats(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		Sysload  *float64 `json:"sysload"`
		Cputime  *float64 `json:"cputime"`
		Memavail *float64 `json:"memavail"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	set(p.misc.sysload, s.Sysload)
	set(p.misc.cputime, s.Cputime)
	set(p.misc.memavail, s.Memavail)
	return nil
}

func decodeWebhooks(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		State string `json:"state"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	if s.State != "" {
		setEnum(p.misc.webhooksState, webhookStates, s.State)
	}
	return nil
}

func decodeExcludeObject(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		Objects         []json.RawMessage `json:"objects"`
		ExcludedObjects []string          `json:"excluded_objects"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	p.misc.objects.WithLabelValues().Set(float64(len(s.Objects)))
	p.misc.excludedObjects.WithLabelValues().Set(float64(len(s.ExcludedObjects)))
	return nil
}

func decodeDisplayStatus(p *Projection, _ status.Key, raw json.RawMessage) error {
	var s struct {
		Progress *float64 `json:"progress"`
	}
	if err := decodeInto(raw, &s); err != nil {
		return err
	}
	set(p.misc.displayProgress, s.Progress)
	return nil
}
