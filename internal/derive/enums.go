package derive

// EnumEntry maps a device code to its display label.
type EnumEntry struct {
	Code  string
	Label string
}

// Enum is a static, ordered code/label table.
type Enum struct {
	entries []EnumEntry
}

// NewEnum creates an Enum from entries in display order.
func NewEnum(entries ...EnumEntry) *Enum {
	return &Enum{entries: entries}
}

// Label returns the label for code.
func (e *Enum) Label(code string) (string, bool) {
	for _, en := range e.entries {
		if en.Code == code {
			return en.Label, true
		}
	}
	return "", false
}

// Code returns the device code for a label. Codes are accepted as well so
// callers may pass either form.
func (e *Enum) Code(label string) (string, bool) {
	for _, en := range e.entries {
		if en.Label == label || en.Code == label {
			return en.Code, true
		}
	}
	return "", false
}

// Labels returns every label in display order.
func (e *Enum) Labels() []string {
	out := make([]string, len(e.entries))
	for i, en := range e.entries {
		out[i] = en.Label
	}
	return out
}

var (
	// AudioSources are the selectable audio routing sources.
	AudioSources = NewEnum(
		EnumEntry{"AudioFollowsVideo", "Audio Follows Video"},
		EnumEntry{"Input1", "Input 1"},
		EnumEntry{"Input2", "Input 2"},
		EnumEntry{"AnalogAudio", "Analog Audio"},
		EnumEntry{"PrimaryStreamAudio", "Primary Stream Audio"},
		EnumEntry{"SecondaryStreamAudio", "Secondary Stream Audio"},
		EnumEntry{"DanteAes67Audio", "Dante/AES-67 Audio"},
		EnumEntry{"NoAudioSelected", "No Audio Selected"},
	)

	// VideoSources are the selectable video routing sources.
	VideoSources = NewEnum(
		EnumEntry{"Input1", "Input 1"},
		EnumEntry{"Input2", "Input 2"},
		EnumEntry{"None", "None"},
		EnumEntry{"Stream", "Stream"},
	)

	// AudioModes are the analog audio port directions.
	AudioModes = NewEnum(
		EnumEntry{"Insert", "Insert"},
		EnumEntry{"Extract", "Extract"},
	)

	// IGMPVersions are the supported IGMP protocol versions.
	IGMPVersions = []string{"v2", "v3"}
)

// TimeZones maps the device time zone codes to Windows style labels.
var TimeZones = NewEnum(timeZoneEntries...)

var timeZoneEntries = []EnumEntry{
	{"000", "(UTC-12:00) International Date Line West"},
	{"002", "(UTC-11:00) Coordinated Universal Time -11"},
	{"147", "(UTC-10:00) Aleutian Islands"},
	{"003", "(UTC-10:00) Hawaii"},
	{"112", "(UTC-10:00) Tahiti"},
	{"100", "(UTC-09:30) Marquesas Islands"},
	{"004", "(UTC-09:00) Alaska"},
	{"151", "(UTC-09:00) Coordinated Universal Time-09"},
	{"101", "(UTC-09:00) Gambier"},
	{"005", "(UTC-08:00) Pacific Time (US & Canada)"},
	{"006", "(UTC-08:00) Baja California"},
	{"150", "(UTC-08:00) Coordinated Universal Time-08"},
	{"99", "(UTC-08:00) Pitcairn Islands"},
	{"007", "(UTC-07:00) Mountain Time (US & Canada)"},
	{"009", "(UTC-07:00) Chihuahua, La Paz, Mazatlan"},
	{"008", "(UTC-07:00) Arizona"},
	{"011", "(UTC-06:00) Saskatchewan"},
	{"012", "(UTC-06:00) Central America"},
	{"010", "(UTC-06:00) Central Time (US & Canada)"},
	{"013", "(UTC-06:00) Guadalajara, Mexico City, Monterrey"},
	{"102", "(UTC-06:00) Easter Island"},
	{"143", "(UTC-05:00) Havana"},
	{"014", "(UTC-05:00) Eastern Time (US & Canada)"},
	{"127", "(UTC-05:00) Chetumal"},
	{"142", "(UTC-05:00) Haiti"},
	{"016", "(UTC-05:00) Bogota, Lima, Quito, Rio Branco"},
	{"152", "(UTC-05:00) Turks and Caicos"},
	{"015", "(UTC-05:00) Indiana (East)"},
	{"018", "(UTC-04:00) Atlantic Time (Canada)"},
	{"021", "(UTC-04:00) Cuiaba"},
	{"020", "(UTC-04:00) Santiago"},
	{"022", "(UTC-04:00) Asuncion"},
	{"019", "(UTC-04:00) Georgetown, La Paz, Manaus, San Juan"},
	{"017", "(UTC-04:00) Caracas"},
	{"023", "(UTC-03:30) Newfoundland"},
	{"027", "(UTC-03:00) Buenos Aires"},
	{"111", "(UTC-03:00) Salvador"},
	{"024", "(UTC-03:00) Brasilia"},
	{"026", "(UTC-03:00) Greenland"},
	{"156", "(UTC-03:00) Punta Arenas"},
	{"028", "(UTC-03:00) Montevideo"},
	{"025", "(UTC-03:00) Cayenne, Fortaleza"},
	{"138", "(UTC-03:00) Saint Pierre and Miquelon"},
	{"136", "(UTC-03:00) Araguaina"},
	{"029", "(UTC-02:00) Mid-Atlantic"},
	{"032", "(UTC-02:00) Coordinated Universal Time -02"},
	{"031", "(UTC-01:00) Azores"},
	{"128", "(UTC-01:00) Cabo Verde Is."},
	{"036", "(UTC) Coordinated Universal Time"},
	{"033", "(UTC+00:00) Dublin, Edinburgh, Lisbon, London"},
	{"034", "(UTC+00:00) Monrovia, Reykjavik"},
	{"035", "(UTC+00:00) Casablanca"},
	{"037", "(UTC+01:00) Belgrade, Bratislava, Budapest, Ljubljana, Prague"},
	{"038", "(UTC+01:00) Sarajevo, Skopje, Warsaw, Zagreb"},
	{"039", "(UTC+01:00) Brussels, Copenhagen, Madrid, Paris"},
	{"155", "(UTC+01:00) Sao Tome"},
	{"041", "(UTC+01:00) West Central Africa"},
	{"040", "(UTC+01:00) Amsterdam, Berlin, Bern, Rome, Stockholm, Vienna"},
	{"043", "(UTC+02:00) Chisinau"},
	{"044", "(UTC+02:00) Cairo"},
	{"045", "(UTC+02:00) Helsinki, Kyiv, Riga, Sofia, Tallinn, Vilnius"},
	{"046", "(UTC+02:00) Athens, Bucharest"},
	{"048", "(UTC+02:00) Jerusalem"},
	{"049", "(UTC+02:00) Amman"},
	{"113", "(UTC+02:00) Tripoli"},
	{"050", "(UTC+02:00) Beirut"},
	{"042", "(UTC+02:00) Windhoek"},
	{"121", "(UTC+02:00) Kaliningrad"},
	{"047", "(UTC+02:00) Harare, Pretoria"},
	{"153", "(UTC+02:00) Khartoum"},
	{"051", "(UTC+02:00) Damascus"},
	{"133", "(UTC+02:00) Gaza, Hebron"},
	{"054", "(UTC+03:00) Kuwait, Riyadh"},
	{"056", "(UTC+03:00) Baghdad"},
	{"114", "(UTC+03:00) Minsk"},
	{"055", "(UTC+03:00) Nairobi"},
	{"117", "(UTC+03:00) Moscow, St. Petersburg, Volgograd"},
	{"052", "(UTC+03:00) Istanbul"},
	{"149", "(UTC+09:00) Pyongyang"},
	{"115", "(UTC+09:00) Yakutsk"},
	{"084", "(UTC+09:00) Osaka, Sapporo, Tokyo"},
	{"131", "(UTC+09:00) Chita"},
	{"086", "(UTC+09:30) Darwin"},
	{"087", "(UTC+09:30) Adelaide"},
	{"088", "(UTC+10:00) Canberra, Melbourne, Sydney"},
	{"089", "(UTC+10:00) Brisbane"},
	{"116", "(UTC+10:00) Vladivostok"},
	{"090", "(UTC+10:00) Hobart"},
	{"092", "(UTC+10:00) Guam, Port Moresby"},
	{"141", "(UTC+10:30) Lord Howe Island"},
	{"145", "(UTC+11:00) Bougainville Island"},
	{"093", "(UTC+11:00) Solomon Is., New Caledonia"},
	{"094", "(UTC+11:00) Magadan"},
	{"139", "(UTC+11:00) Norfolk Island"},
	{"125", "(UTC+11:00) Chokurdakh"},
	{"137", "(UTC+11:00) Sakhalin"},
	{"095", "(UTC+12:00) Fiji"},
	{"096", "(UTC+12:00) Auckland, Wellington"},
	{"126", "(UTC+12:00) Anadyr, Petropavlovsk-Kamchatsky"},
	{"097", "(UTC+12:00) Coordinated Universal Time +12"},
	{"144", "(UTC+12:45) Chatham Islands"},
	{"001", "(UTC+13:00) Samoa"},
	{"098", "(UTC+13:00) Nuku'alofa"},
	{"157", "(UTC+13:00) Coordinated Universal Time+13"},
	{"123", "(UTC+14:00) Kiritimati Island"},
}
