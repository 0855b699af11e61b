package exposes

// Standard capability presets.

func Battery() *Expose {
	return NewNumeric("battery", AccessStateGet).WithUnit("%").WithValueMin(0).WithValueMax(100).
		WithDescription("Remaining battery in %, can take up to 24 hours before reported").WithCategory(CategoryDiagnostic)
}

func BatteryLow() *Expose {
	return NewBinary("battery_low", AccessState, true, false).
		WithDescription("Indicates if the battery of this device is almost empty").WithCategory(CategoryDiagnostic)
}

func BatteryVoltage() *Expose {
	return NewNumeric("voltage", AccessStateGet).WithUnit("mV").
		WithDescription("Voltage of the battery in millivolts").WithCategory(CategoryDiagnostic)
}

func Contact() *Expose {
	return NewBinary("contact", AccessState, false, true).
		WithDescription("Indicates if the contact is closed (= true) or open (= false)")
}

func Tamper() *Expose {
	return NewBinary("tamper", AccessState, true, false).
		WithDescription("Indicates whether the device is tampered")
}

func WaterLeak() *Expose {
	return NewBinary("water_leak", AccessState, true, false).
		WithDescription("Indicates whether the device detected a water leak")
}

func Occupancy() *Expose {
	return NewBinary("occupancy", AccessState, true, false).
		WithDescription("Indicates whether the device detected occupancy")
}

func Temperature() *Expose {
	return NewNumeric("temperature", AccessStateGet).WithUnit("°C").
		WithDescription("Measured temperature value")
}

func Humidity() *Expose {
	return NewNumeric("humidity", AccessStateGet).WithUnit("%").
		WithDescription("Measured relative humidity")
}

func Pressure() *Expose {
	return NewNumeric("pressure", AccessStateGet).WithUnit("hPa").
		WithDescription("The measured atmospheric pressure")
}

func Illuminance() *Expose {
	return NewNumeric("illuminance", AccessStateGet).WithUnit("lx").
		WithDescription("Measured illuminance in lux")
}

func Power() *Expose {
	return NewNumeric("power", AccessStateGet).WithUnit("W").
		WithDescription("Instantaneous measured power")
}

func Voltage() *Expose {
	return NewNumeric("voltage", AccessStateGet).WithUnit("V").
		WithDescription("Measured electrical potential value")
}

func Current() *Expose {
	return NewNumeric("current", AccessStateGet).WithUnit("A").
		WithDescription("Instantaneous measured electrical current")
}

func Energy() *Expose {
	return NewNumeric("energy", AccessStateGet).WithUnit("kWh").
		WithDescription("Sum of consumed energy")
}

func LinkQuality() *Expose {
	return NewNumeric("linkquality", AccessState).WithUnit("lqi").WithValueMin(0).WithValueMax(255).
		WithDescription("Link quality (signal strength)").WithCategory(CategoryDiagnostic)
}

func Action(values []string) *Expose {
	return NewEnum("action", AccessState, values).
		WithDescription("Triggered action (e.g. a button click)")
}

// PowerOnBehavior is the startup state enum shared by switches and lights.
func PowerOnBehavior() *Expose {
	return NewEnum("power_on_behavior", AccessAll, []string{"off", "on", "toggle", "previous"}).
		WithDescription("Controls the behavior when the device is powered on after power loss").
		WithCategory(CategoryConfig)
}

// Switch returns an on/off container with a single state feature.
func Switch() *Expose {
	s := &Expose{Type: TypeSwitch, Features: []*Expose{}}
	return s.WithFeature(NewBinary("state", AccessAll, "ON", "OFF").
		WithValueToggle("TOGGLE").WithDescription("On/off state of the switch"))
}

// Light returns a light container with state and optional brightness and
// colour temperature features.
func Light(brightness bool, colorTemp *[2]float64) *Expose {
	l := &Expose{Type: TypeLight, Features: []*Expose{}}
	l.WithFeature(NewBinary("state", AccessAll, "ON", "OFF").
		WithValueToggle("TOGGLE").WithDescription("On/off state of this light"))
	if brightness {
		l.WithFeature(NewNumeric("brightness", AccessAll).WithValueMin(0).WithValueMax(254).
			WithDescription("Brightness of this light"))
	}
	if colorTemp != nil {
		l.WithFeature(NewNumeric("color_temp", AccessAll).WithUnit("mired").
			WithValueMin(colorTemp[0]).WithValueMax(colorTemp[1]).
			WithDescription("Color temperature of this light"))
	}
	return l
}
