package adherence

// Rate is an expectation-based adherence figure for one patient: confirmed
// doses over active medications times window days.
type Rate struct {
	WindowDays  int     `json:"window_days"`
	Medications int     `json:"medications"`
	Taken       int     `json:"taken"`
	Expected    int     `json:"expected"`
	Ratio       float64 `json:"ratio"`
	Percent     int     `json:"percent"`
}

// MedicationStatus is one row of a patient's day view.
type MedicationStatus struct {
	Medication string `json:"medication"`
	Taken      bool   `json:"taken"`
	Recorded   bool   `json:"recorded"`
}

// Summary holds the short and long rolling windows side by side.
type Summary struct {
	Short Rate `json:"short"`
	Long  Rate `json:"long"`
}
