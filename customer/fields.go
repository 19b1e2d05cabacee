package customer

import (
	"math"
)

type kind int

const (
	kindCode kind = iota
	kindTenure
	kindCharge
)

type field struct {
	name   string
	kind   kind
	labels []string
	ints   func(*Record) *int
	floats func(*Record) *float64
	max    func(Bounds) float64
}

var inputFields = []field{
	codeField("gender", genderLabels, func(r *Record) *int { return &r.Gender }),
	codeField("SeniorCitizen", yesNoLabels, func(r *Record) *int { return &r.SeniorCitizen }),
	codeField("Partner", yesNoLabels, func(r *Record) *int { return &r.Partner }),
	codeField("Dependents", yesNoLabels, func(r *Record) *int { return &r.Dependents }),
	{name: "tenure", kind: kindTenure, ints: func(r *Record) *int { return &r.Tenure }},
	codeField("PhoneService", yesNoLabels, func(r *Record) *int { return &r.PhoneService }),
	codeField("MultipleLines", yesNoLabels, func(r *Record) *int { return &r.MultipleLines }),
	codeField("InternetService", internetLabels, func(r *Record) *int { return &r.InternetService }),
	codeField("OnlineSecurity", serviceLabels, func(r *Record) *int { return &r.OnlineSecurity }),
	codeField("OnlineBackup", serviceLabels, func(r *Record) *int { return &r.OnlineBackup }),
	codeField("DeviceProtection", serviceLabels, func(r *Record) *int { return &r.DeviceProtection }),
	codeField("TechSupport", serviceLabels, func(r *Record) *int { return &r.TechSupport }),
	codeField("StreamingTV", serviceLabels, func(r *Record) *int { return &r.StreamingTV }),
	codeField("StreamingMovies", serviceLabels, func(r *Record) *int { return &r.StreamingMovies }),
	codeField("Contract", contractLabels, func(r *Record) *int { return &r.Contract }),
	codeField("PaperlessBilling", yesNoLabels, func(r *Record) *int { return &r.PaperlessBilling }),
	codeField("PaymentMethod", paymentLabels, func(r *Record) *int { return &r.PaymentMethod }),
	{
		name:   "MonthlyCharges",
		kind:   kindCharge,
		floats: func(r *Record) *float64 { return &r.MonthlyCharges },
		max:    func(b Bounds) float64 { return b.MaxMonthlyCharges },
	},
	{
		name:   "TotalCharges",
		kind:   kindCharge,
		floats: func(r *Record) *float64 { return &r.TotalCharges },
		max:    func(b Bounds) float64 { return b.MaxTotalCharges },
	},
}

var fieldsByName = func() map[string]*field {
	m := make(map[string]*field, len(inputFields))
	for i := range inputFields {
		m[inputFields[i].name] = &inputFields[i]
	}
	return m
}()

func codeField(name string, labels []string, ints func(*Record) *int) field {
	return field{name: name, kind: kindCode, labels: labels, ints: ints}
}

func (f *field) value(r *Record) float64 {
	if f.floats != nil {
		return *f.floats(r)
	}
	return float64(*f.ints(r))
}

// set stores v after checking that integer fields receive an integral value.
func (f *field) set(r *Record, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(f.name, "not a finite number")
	}
	if f.floats != nil {
		*f.floats(r) = v
		return nil
	}
	if v != math.Trunc(v) {
		return invalid(f.name, "must be an integer, got %v", v)
	}
	// larger magnitudes do not survive the int conversion
	if math.Abs(v) > 1<<31 {
		return invalid(f.name, "%v is out of range", v)
	}
	*f.ints(r) = int(v)
	return nil
}

func (f *field) check(r *Record, b Bounds) error {
	switch f.kind {
	case kindCode:
		code := *f.ints(r)
		if code < 0 || code >= len(f.labels) {
			return invalid(f.name, "code %d outside [0, %d]", code, len(f.labels)-1)
		}
	case kindTenure:
		t := *f.ints(r)
		if t < 0 || t > MaxTenure {
			return invalid(f.name, "%d outside [0, %d]", t, MaxTenure)
		}
	case kindCharge:
		v := *f.floats(r)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid(f.name, "not a finite number")
		}
		if max := f.max(b); v < 0 || v > max {
			return invalid(f.name, "%v outside [0, %v]", v, max)
		}
	}
	return nil
}
