package constants

// Log formats
const (
	FORMAT_NGINX_COMBINED  = "nginx_combined"
	FORMAT_APACHE_COMBINED = "apache_combined"
	FORMAT_AUTO            = "auto"
)

// Aggregation settings
const (
	TOP_K                  = 10 // Top paths, IPs, user agents, status codes
	TOP_K_SLOTS            = 40 // Exact map capacity before min-replacement (4 * TOP_K)
	AGGREGATE_BUCKET_HOURS = 1
	PROGRESS_REPORT_EVENTS = 10000 // Aggregator reports progress at least this often
)

// Security rule thresholds
const (
	SCANNER_404_THRESHOLD      = 20 // 404s from one IP inside the scanner window
	SCANNER_404_HIGH_THRESHOLD = 50 // Escalate the scanner finding one severity step
	SCANNER_WINDOW_MINUTES     = 10
	BRUTE_FORCE_THRESHOLD      = 15 // 4xx on auth paths from one IP inside the window
	BRUTE_FORCE_WINDOW_MINUTES = 5
	CLIENT_5XX_THRESHOLD       = 10 // 5xx to one IP inside the window
	CLIENT_5XX_WINDOW_MINUTES  = 5
	MAX_EVIDENCE_SAMPLES       = 20 // Evidence lines kept per finding
	MAX_FAILED_LINE_SAMPLES    = 10 // Parse error samples kept in the quality report
)

// Anomaly detection defaults
const (
	DEFAULT_BASELINE_DAYS      = 7
	DEFAULT_MIN_BASELINE_HOURS = 24
	DEFAULT_Z_THRESHOLD        = 3.0
	DEFAULT_NEW_PATH_MIN_COUNT = 10
	ANOMALY_REQUEST_FLOOR      = 200 // Minimum hourly requests before a traffic anomaly fires
	ANOMALY_ERROR_FLOOR        = 10  // Minimum hourly 4xx+5xx before an error anomaly fires
	ANOMALY_SIGMA_EPSILON      = 1.0 // Lower bound on sigma in the z-score denominator
)

// Pipeline settings
const (
	PERSIST_MAX_ATTEMPTS   = 5 // Capped exponential backoff attempts for transient store errors
	PERSIST_BASE_DELAY_MS  = 200
	PERSIST_MAX_DELAY_MS   = 5000
	EVENT_DISORDER_MINUTES = 5 // Tolerated timestamp disorder inside sliding windows
)

// Job queue settings
const (
	QUEUE_KEY         = "logamizer:jobs"
	JOB_LOCK_KEY      = "logamizer:lock:"     // + log file id
	PROGRESS_KEY      = "logamizer:progress:" // + job id
	JOB_LOCK_TTL_SECS = 3600
	QUEUE_POP_TIMEOUT = 5 // seconds for BRPOP before re-checking shutdown
	DEFAULT_WORKERS   = 4
)

// File paths
const (
	CONFIG_DIR_NAME = "/.logamizer"
	LOG_FILE        = "/tmp/logamizer.log"
)

// OTLP export settings
const (
	OTLP_PATH                   = "/v1/metrics"
	DEFAULT_EXPORT_INTERVAL_SEC = 30
)

// AdminProbePaths are curated path prefixes that legitimate traffic almost never
// requests; repeated hits from one IP indicate admin-panel probing.
var AdminProbePaths = []string{
	"/wp-admin",
	"/wp-login",
	"/phpmyadmin",
	"/pma",
	"/.env",
	"/.git/",
	"/cgi-bin/",
	"/admin/config",
	"/vendor/phpunit",
	"/xmlrpc.php",
}

// SensitiveFilePatterns match paths whose successful (2xx) retrieval exposes
// secrets or server internals.
var SensitiveFilePatterns = []string{
	`\.env(\.|$)`,
	`\.git/`,
	`\.htpasswd`,
	`\.ssh/`,
	`/etc/passwd`,
	`\.sql($|\.gz$)`,
	`\.pem$`,
	`(^|/)id_rsa`,
	`wp-config\.php`,
	`\.bak$`,
}

// InjectionSignatures are regexes over the request path and query string grouped
// by signature family.
var InjectionSignatures = map[string]string{
	"sqli": `(?i)(union[\s+]+select|select[\s+]+.+[\s+]+from|sleep\(|benchmark\(|or[\s+]+1=1|information_schema|'--|%27--)`,
	"xss":  `(?i)(<script|%3cscript|onerror=|onload=|javascript:|alert\(|document\.cookie)`,
}

// AuthPathPatterns identify authentication endpoints for the brute-force rule.
var AuthPathPatterns = []string{
	"/login",
	"/signin",
	"/wp-login",
	"/auth",
	"/session",
	"/api/token",
	"/oauth",
}

// BadUserAgents is a known-bad scanner and attack tool set, matched as lowercase
// substrings of the request user agent.
var BadUserAgents = []string{
	"sqlmap",
	"nikto",
	"masscan",
	"nmap",
	"dirbuster",
	"gobuster",
	"wpscan",
	"hydra",
	"zgrab",
	"acunetix",
	"netsparker",
	"havij",
}
