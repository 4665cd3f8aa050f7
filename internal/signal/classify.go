// Package signal flags methods whose string constants or framework calls
// suggest sensitive behavior, and grows a call-graph neighborhood around
// them for review.
package signal

import (
	"math"
	"regexp"
	"strings"
)

// Signal categories.
const (
	CatURL        = "url"
	CatHost       = "host"
	CatEncryption = "encryption"
	CatAuth       = "auth"
	CatNet        = "net"
	CatFileExt    = "file"
	CatBase64Key  = "base64"

	CatSIM         = "sim"         // IMEI, IMSI, carrier
	CatSMS         = "sms"         // SMS read/send
	CatContacts    = "contacts"    // contacts, call log
	CatLocation    = "location"    // GPS, geofence
	CatDeviceInfo  = "device"      // device IDs, installed packages
	CatCloaking    = "cloaking"    // locale and keyword gating
	CatDataCollect = "data"        // bulk harvesting
	CatCamera      = "camera"      // camera and microphone
	CatWebView     = "webview"     // WebView, JS bridges, cookies
	CatBlockchain  = "blockchain"  // wallets, seed phrases
	CatGambling    = "gambling"    // betting, casino
	CatAttribution = "attribution" // install referrer, campaign tracking

	CatDynamicCode = "dyncode"    // class loaders over external DEX
	CatExec        = "exec"       // process spawning
	CatReflection  = "reflection" // reflective member access
	CatNativeLoad  = "native"     // System.loadLibrary and friends
)

// rule matches normalized keywords and a raw-string regexp. Either hit
// assigns the category.
type rule struct {
	cat      string
	keywords []string
	re       *regexp.Regexp
}

// Keyword lists are lowercase with separators removed; see normalize.
var stringRules = []rule{
	{cat: CatEncryption,
		keywords: []string{"encrypt", "decrypt", "cipher", "secretkeyspec", "ivparameterspec",
			"pbkdf", "bcrypt", "scrypt", "hmacsha", "chacha", "keygenerator", "messagedigest"},
		// Short names need boundaries: "rsa" sits inside "traversal".
		re: regexp.MustCompile(`(?i)(^|[^a-zA-Z])(aes|rsa|des|desede|ecdsa|hmac|sha1|sha256|sha512|md5|cbc|ecb|gcm|pkcs5padding|pkcs7padding|nopadding|rc4|xor|salt)([^a-zA-Z]|$)`)},
	{cat: CatAuth,
		re: regexp.MustCompile(`(?i)(^|[^a-zA-Z])(oauth|jwt|bearer|credential|passwd|password|token|secret|apikey|api_key|authorization)([^a-zA-Z]|$)`)},
	{cat: CatSIM,
		keywords: []string{"imei", "imsi", "simserial", "simoperator", "simcountry",
			"subscriberid", "line1number", "networkoperator", "telephonymanager"}},
	{cat: CatSMS,
		keywords: []string{"smsmanager", "sendtextmessage", "smsreceived", "content://sms"},
		re:       regexp.MustCompile(`(?i)(^|[^a-zA-Z])(sms|mms|pdus)([^a-zA-Z]|$)`)},
	{cat: CatContacts,
		keywords: []string{"contactscontract", "content://contacts", "content://calllog",
			"readcontacts", "calllog", "phonelookup", "addressbook"}},
	{cat: CatLocation,
		keywords: []string{"latitude", "longitude", "geofence", "geolocation", "lastknownlocation",
			"fusedlocation", "locationmanager", "requestlocationupdates", "accessfinelocation"},
		re: regexp.MustCompile(`(?i)(^|[^a-zA-Z])gps([^a-zA-Z]|$)`)},
	{cat: CatDeviceInfo,
		keywords: []string{"androidid", "deviceid", "serialnumber", "getinstalledpackages",
			"getinstalledapplications", "buildfingerprint", "advertisingid", "macaddress"}},
	{cat: CatCloaking,
		keywords: []string{"getsimcountryiso", "getnetworkcountryiso", "checklocale", "checklanguage",
			"checktimezone", "isemulator", "goldfish", "genymotion", "cloak"}},
	{cat: CatDataCollect,
		re: regexp.MustCompile(`(?i)(data.?collect|collect.?data|harvest|bulk.?upload|exfiltrat|upload.?contacts)`)},
	{cat: CatCamera,
		keywords: []string{"androidpermissioncamera", "camera2", "takepicture", "mediarecorder",
			"recordaudio", "audiorecord"}},
	{cat: CatWebView,
		keywords: []string{"addjavascriptinterface", "evaluatejavascript", "loadurl", "loaddatawithbaseurl",
			"setjavascriptenabled", "shouldoverrideurlloading", "cookiemanager", "javascript:"},
		re: regexp.MustCompile(`(?i)(^|[^a-zA-Z])(webview|jsbridge)([^a-zA-Z]|$)`)},
	{cat: CatBlockchain,
		keywords: []string{"mnemonic", "seedphrase", "bip39", "privatekey", "walletconnect",
			"ethereum", "bitcoin", "metamask", "trustwallet"},
		re: regexp.MustCompile(`(?i)(^|[^a-zA-Z])(wallet|web3|usdt|erc20)([^a-zA-Z]|$)`)},
	{cat: CatGambling,
		keywords: []string{"casino", "roulette", "blackjack", "jackpot", "slotmachine", "sportsbet", "lottery"},
		re:       regexp.MustCompile(`(?i)(^|[^a-zA-Z])(bet|wager|poker|cashout)([^a-zA-Z]|$)`)},
	{cat: CatAttribution,
		keywords: []string{"installreferrer", "appsflyer", "adjustconfig", "kochava", "branchio"},
		re:       regexp.MustCompile(`(?i)(^|[^a-zA-Z])(referrer|campaign|utm_source|utm_medium|utm_campaign|gclid)([^a-zA-Z]|$)`)},
	{cat: CatDynamicCode,
		keywords: []string{"dexclassloader", "inmemorydexclassloader", "pathclassloader", "classesdex"}},
	{cat: CatExec,
		keywords: []string{"/system/bin/sh", "/system/xbin/su", "processbuilder"},
		re:       regexp.MustCompile(`(^|[^a-zA-Z])(su|chmod|pm install|am start)([^a-zA-Z]|$)`)},
	{cat: CatNativeLoad,
		re: regexp.MustCompile(`^lib[A-Za-z0-9_\-]+\.so$`)},
}

var (
	reURL       = regexp.MustCompile(`(?i)(https?|wss?|ftp)://`)
	reIPLiteral = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	reBase64    = regexp.MustCompile(`^[A-Za-z0-9+/=]{16,}$`)

	httpMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}
	netKeywords = []string{"socket", "proxy", "useragent", "user-agent", "content-type"}

	signalExtensions = []string{
		".dex", ".jar", ".so", ".apk", ".zip",
		".db", ".sqlite", ".json", ".xml",
		".pem", ".crt", ".p12", ".jks", ".bks",
		".js", ".sh",
	}
)

// ClassifyString returns the signal categories of a string constant, or
// nil when it carries none.
func ClassifyString(value string) []string {
	if len(value) < 2 {
		return nil
	}

	var cats []string
	lower := strings.ToLower(value)

	if reURL.MatchString(value) {
		cats = append(cats, CatURL)
	}
	if reIPLiteral.MatchString(value) {
		cats = append(cats, CatHost)
	}

	for _, m := range httpMethods {
		if value == m {
			cats = append(cats, CatNet)
			break
		}
	}
	if !containsCat(cats, CatNet) && containsAny(lower, netKeywords) {
		cats = append(cats, CatNet)
	}

	for _, ext := range signalExtensions {
		if strings.HasSuffix(lower, ext) {
			cats = append(cats, CatFileExt)
			break
		}
	}

	// Identifiers share the base64 alphabet; camelCase rules them out.
	trimmed := strings.TrimSpace(value)
	if reBase64.MatchString(trimmed) && entropy(value) > 3.5 && !isCamelCase(trimmed) {
		cats = append(cats, CatBase64Key)
	}

	norm := normalize(value)
	for _, r := range stringRules {
		if containsAny(norm, r.keywords) || (r.re != nil && r.re.MatchString(value)) {
			cats = append(cats, r.cat)
		}
	}
	return cats
}

// apiRule assigns a category to invokes of methods whose full name
// starts with prefix.
type apiRule struct {
	prefix string
	cat    string
}

var apiRules = []apiRule{
	{"Landroid/telephony/SmsManager;", CatSMS},
	{"Landroid/telephony/TelephonyManager;->getDeviceId", CatSIM},
	{"Landroid/telephony/TelephonyManager;->getImei", CatSIM},
	{"Landroid/telephony/TelephonyManager;->getSubscriberId", CatSIM},
	{"Landroid/telephony/TelephonyManager;->getLine1Number", CatSIM},
	{"Landroid/telephony/TelephonyManager;->getSimSerialNumber", CatSIM},
	{"Landroid/telephony/TelephonyManager;->getSimCountryIso", CatCloaking},
	{"Landroid/telephony/TelephonyManager;->getNetworkCountryIso", CatCloaking},
	{"Landroid/location/", CatLocation},
	{"Lcom/google/android/gms/location/", CatLocation},
	{"Landroid/provider/ContactsContract", CatContacts},
	{"Landroid/provider/CallLog", CatContacts},
	{"Landroid/provider/Settings$Secure;->getString", CatDeviceInfo},
	{"Landroid/content/pm/PackageManager;->getInstalledPackages", CatDeviceInfo},
	{"Landroid/content/pm/PackageManager;->getInstalledApplications", CatDeviceInfo},
	{"Landroid/hardware/Camera;", CatCamera},
	{"Landroid/hardware/camera2/", CatCamera},
	{"Landroid/media/AudioRecord;", CatCamera},
	{"Landroid/media/MediaRecorder;", CatCamera},
	{"Landroid/webkit/WebView;->addJavascriptInterface", CatWebView},
	{"Landroid/webkit/WebView;->evaluateJavascript", CatWebView},
	{"Landroid/webkit/WebView;->loadUrl", CatWebView},
	{"Landroid/webkit/CookieManager;", CatWebView},
	{"Ljavax/crypto/", CatEncryption},
	{"Ljava/security/MessageDigest;", CatEncryption},
	{"Ljava/security/KeyPairGenerator;", CatEncryption},
	{"Ljava/net/Socket;", CatNet},
	{"Ljava/net/URL;->openConnection", CatNet},
	{"Ljava/net/HttpURLConnection;", CatNet},
	{"Lokhttp3/OkHttpClient;", CatNet},
	{"Ldalvik/system/DexClassLoader;", CatDynamicCode},
	{"Ldalvik/system/InMemoryDexClassLoader;", CatDynamicCode},
	{"Ldalvik/system/PathClassLoader;", CatDynamicCode},
	{"Ljava/lang/Runtime;->exec", CatExec},
	{"Ljava/lang/ProcessBuilder;", CatExec},
	{"Ljava/lang/reflect/Method;->invoke", CatReflection},
	{"Ljava/lang/Class;->forName", CatReflection},
	{"Ljava/lang/Class;->getDeclaredMethod", CatReflection},
	{"Ljava/lang/System;->loadLibrary", CatNativeLoad},
	{"Ljava/lang/System;->load(", CatNativeLoad},
	{"Ljava/lang/Runtime;->loadLibrary", CatNativeLoad},
	{"Lcom/android/installreferrer/", CatAttribution},
}

// ClassifyAPI returns the categories of an invoked method given its full
// name ("Lcls;->name(params)ret"), or nil.
func ClassifyAPI(method string) []string {
	var cats []string
	for _, r := range apiRules {
		if strings.HasPrefix(method, r.prefix) && !containsCat(cats, r.cat) {
			cats = append(cats, r.cat)
		}
	}
	return cats
}

// Severity levels.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// CategorySeverity returns the severity level for a category.
func CategorySeverity(cat string) string {
	switch cat {
	case CatEncryption, CatAuth, CatSIM, CatSMS, CatContacts, CatCloaking, CatDataCollect,
		CatWebView, CatBlockchain, CatGambling, CatDynamicCode, CatExec:
		return SeverityHigh
	case CatURL, CatHost, CatBase64Key, CatLocation, CatDeviceInfo, CatCamera, CatAttribution,
		CatNativeLoad:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

var severityRank = map[string]int{SeverityHigh: 0, SeverityMedium: 1, SeverityLow: 2, "": 3}

// MaxSeverity returns the highest severity among categories. An empty list
// is low.
func MaxSeverity(categories []string) string {
	best := SeverityLow
	for _, c := range categories {
		if s := CategorySeverity(c); severityRank[s] < severityRank[best] {
			best = s
		}
	}
	return best
}

func isCamelCase(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] >= 'a' && s[i-1] <= 'z' && s[i] >= 'A' && s[i] <= 'Z' {
			return true
		}
	}
	return false
}

// normalize lowercases s and drops '_', '-', ' ' and '.', so that
// "getInstalledPackages" and "get_installed_packages" share a keyword.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || c == '-' || c == ' ' || c == '.':
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + 'a' - 'A')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func containsCat(cats []string, cat string) bool {
	for _, c := range cats {
		if c == cat {
			return true
		}
	}
	return false
}

// entropy is the Shannon entropy of s in bits per byte.
func entropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	var freq [256]int
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	n := float64(len(s))
	var ent float64
	for _, count := range freq {
		if count > 0 {
			p := float64(count) / n
			ent -= p * math.Log2(p)
		}
	}
	return ent
}
