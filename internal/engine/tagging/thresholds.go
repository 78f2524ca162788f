package tagging

// Tag labels.
const (
	TagGameHeavy    = "game-heavy"
	TagVideoHeavy   = "video-heavy"
	TagSocial       = "social"
	TagEduFocused   = "edu-focused"
	TagTechnical    = "technical"
	TagNightOwl     = "night-owl"
	TagEarlyRiser   = "early-riser"
	TagRegular      = "regular"
	TagIrregular    = "irregular"
	TagWeekend      = "weekend-active"
	TagPortScan     = "port-scan-suspect"
	TagDNSSuspect   = "dns-suspect"
	TagNightAnomaly = "anomalous-night-activity"
	TagBlacklist    = "blacklist-access"
)

// Default thresholds. Percentages are of the user's own total bytes.
const (
	GameHeavyPct          = 30.0
	VideoHeavyPct         = 40.0
	SocialPct             = 30.0
	EduFocusedPct         = 20.0
	TechnicalPortTouches  = 20
	NightOwlPct           = 40.0
	EarlyRiserPct         = 30.0
	RegularMaxHourlyCV    = 1.0
	RegularMinActiveHours = 2
	WeekendActivePct      = 50.0
	PortScanDistinctPorts = 3
	DNSSuspectQueries     = 50
	AnomalousNightPct     = 60.0
	BlacklistMinHits      = 1
)

// NightHours and MorningHours are the hour windows of the temporal rules.
var (
	NightHours   = []int{22, 23, 0, 1, 2}
	MorningHours = []int{6, 7, 8, 9}
)
