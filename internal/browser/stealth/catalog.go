package stealth

// The patch catalog. Each entry targets one observable surface and is
// independent of every other entry: a guard that evaluates false (or a body
// that throws) skips that surface only, the remaining patches still apply.
//
// Bodies are text/template snippets. Every profile value enters through the
// "js" or "num" template functions; nothing is interpolated raw. Helpers
// available inside a body: def(obj, prop, getter) and srand() (the shared
// seeded generator, already advanced past the init-time draws listed on each
// patch that consumes them).

// Patch describes a single override.
type Patch struct {
	// Name identifies the surface in comments and consistency reports.
	Name string
	// Guard is a JS expression; the body runs only when it is truthy.
	Guard string
	// Body is the override itself, rendered with the script view.
	Body string
}

var catalog = []Patch{
	{
		Name:  "webdriver",
		Guard: "typeof navigator !== 'undefined'",
		Body: `
try { delete Object.getPrototypeOf(navigator).webdriver; } catch (e) {}
def(navigator, 'webdriver', function () { return undefined; });`,
	},
	{
		Name:  "hardware",
		Guard: "typeof navigator !== 'undefined'",
		Body: `
def(navigator, 'hardwareConcurrency', function () { return {{num .Cores}}; });
def(navigator, 'deviceMemory', function () { return {{num .MemoryGB}}; });`,
	},
	{
		Name:  "platform",
		Guard: "typeof navigator !== 'undefined'",
		Body: `
def(navigator, 'platform', function () { return {{js .Platform}}; });
def(navigator, 'vendor', function () { return {{js .Vendor}}; });`,
	},
	{
		Name:  "window-frame",
		Guard: "typeof window !== 'undefined' && typeof screen !== 'undefined'",
		Body: `
var bar = Math.round(87 * (window.devicePixelRatio || 1));
def(window, 'outerWidth', function () { return {{num .ScreenW}}; });
def(window, 'outerHeight', function () { return (window.innerHeight || {{num .ScreenH}}) + bar; });
def(screen, 'width', function () { return {{num .ScreenW}}; });
def(screen, 'height', function () { return {{num .ScreenH}}; });
def(screen, 'availWidth', function () { return {{num .ScreenW}}; });
def(screen, 'availHeight', function () { return {{num .ScreenH}} - 40; });`,
	},
	{
		Name:  "ua-data",
		Guard: "typeof navigator !== 'undefined'",
		Body: `
var brands = {{.BrandsJSON}};
var fullVersions = {{.FullVersionsJSON}};
var highEntropy = {
  architecture: {{js .Arch}},
  bitness: {{js .Bitness}},
  brands: brands,
  fullVersionList: fullVersions,
  mobile: false,
  model: '',
  platform: {{js .OSPlatform}},
  platformVersion: {{js .OSPlatformVersion}},
  uaFullVersion: {{js .ChromeVersion}},
  wow64: false
};
var uaData = {
  brands: brands,
  mobile: false,
  platform: {{js .OSPlatform}},
  getHighEntropyValues: function (hints) {
    var out = { brands: brands, mobile: false, platform: highEntropy.platform };
    (hints || []).forEach(function (h) {
      if (Object.prototype.hasOwnProperty.call(highEntropy, h)) { out[h] = highEntropy[h]; }
    });
    return Promise.resolve(out);
  },
  toJSON: function () { return { brands: brands, mobile: false, platform: highEntropy.platform }; }
};
def(navigator, 'userAgentData', function () { return uaData; });`,
	},
	{
		Name:  "chrome-runtime",
		Guard: "typeof window !== 'undefined' && !window.chrome",
		Body: `
window.chrome = {
  app: { isInstalled: false },
  runtime: {
    connect: function () {},
    sendMessage: function () {},
    onMessage: { addListener: function () {}, removeListener: function () {} }
  },
  loadTimes: function () {
    var t = Date.now() / 1000;
    return {
      requestTime: t, startLoadTime: t, commitLoadTime: t + 0.08,
      finishDocumentLoadTime: t + 0.2, finishLoadTime: t + 0.3, navigationStart: t
    };
  },
  csi: function () {
    return { onloadT: Date.now(), pageT: Date.now() + 120, startE: Date.now() - 900, tran: 15 };
  }
};`,
	},
	{
		// Lazy jitter: one srand() draw per query call.
		Name:  "permissions",
		Guard: "typeof navigator !== 'undefined' && navigator.permissions && navigator.permissions.query",
		Body: `
var realQuery = navigator.permissions.query.bind(navigator.permissions);
navigator.permissions.query = function (desc) {
  var delay = 12 + Math.floor(srand() * 24);
  return new Promise(function (resolve, reject) {
    setTimeout(function () { realQuery(desc).then(resolve, reject); }, delay);
  });
};`,
	},
	{
		// Init-time draws #1 and #2: downlink, then rtt.
		Name:  "network-info",
		Guard: "typeof navigator !== 'undefined'",
		Body: `
var downlink = Math.round((4.5 + srand() * 5.5) * 20) / 20;
var rtt = 25 * (1 + Math.floor(srand() * 4));
var conn = {
  effectiveType: '4g', downlink: downlink, rtt: rtt, saveData: false,
  addEventListener: function () {}, removeEventListener: function () {},
  dispatchEvent: function () { return true; }
};
def(navigator, 'connection', function () { return conn; });`,
	},
	{
		Name:  "battery",
		Guard: "typeof navigator !== 'undefined'",
		Body: `
var battery = {
  charging: true, chargingTime: 0, dischargingTime: Infinity, level: 1,
  addEventListener: function () {}, removeEventListener: function () {},
  dispatchEvent: function () { return true; }
};
navigator.getBattery = function () { return Promise.resolve(battery); };`,
	},
	{
		// Sources strictly the profile's timezone field; every format call
		// resolves to the same zone the context config declares.
		Name:  "timezone",
		Guard: "typeof Intl !== 'undefined' && Intl.DateTimeFormat && Intl.DateTimeFormat.prototype.resolvedOptions",
		Body: `
var realResolved = Intl.DateTimeFormat.prototype.resolvedOptions;
Intl.DateTimeFormat.prototype.resolvedOptions = function () {
  var opts = realResolved.call(this);
  opts.timeZone = {{js .TimeZone}};
  return opts;
};`,
	},
	{
		Name:  "fonts",
		Guard: "typeof document !== 'undefined' && document.fonts && document.fonts.check",
		Body: `
var realCheck = document.fonts.check.bind(document.fonts);
var common = ['Arial', 'Calibri', 'Cambria', 'Consolas', 'Courier New', 'Georgia',
  'Segoe UI', 'Tahoma', 'Times New Roman', 'Trebuchet MS', 'Verdana'];
document.fonts.check = function (font, text) {
  for (var i = 0; i < common.length; i++) {
    if (font && font.indexOf(common[i]) !== -1) { return true; }
  }
  return realCheck(font, text);
};`,
	},
	{
		Name:  "media-devices",
		Guard: "typeof navigator !== 'undefined' && navigator.mediaDevices",
		Body: `
var devices = [
  { deviceId: 'default', kind: 'audioinput', label: '', groupId: 'b2f7305a' },
  { deviceId: 'default', kind: 'audiooutput', label: '', groupId: 'b2f7305a' },
  { deviceId: 'a31c9d04', kind: 'videoinput', label: '', groupId: '5d82f06e' }
];
devices.forEach(function (d) { d.toJSON = function () { return d; }; });
navigator.mediaDevices.enumerateDevices = function () { return Promise.resolve(devices.slice()); };`,
	},
	{
		// Lazy jitter: one srand() draw per position request (the delay).
		Name:  "geolocation",
		Guard: "typeof navigator !== 'undefined' && navigator.geolocation",
		Body: `
var makePosition = function () {
  return {
    coords: {
      latitude: {{num .Latitude}}, longitude: {{num .Longitude}},
      accuracy: {{num .GeoAccuracy}}, altitude: null, altitudeAccuracy: null,
      heading: null, speed: null
    },
    timestamp: Date.now()
  };
};
var deliver = function (ok) {
  var delay = 180 + Math.floor(srand() * 240);
  setTimeout(function () { ok(makePosition()); }, delay);
};
navigator.geolocation.getCurrentPosition = function (ok) { deliver(ok); };
navigator.geolocation.watchPosition = function (ok) { deliver(ok); return 1; };`,
	},
	{
		// Lazy jitter: roughly one draw per pixel during read-back. The noise
		// flips the alpha low bit only, invisible but cache-busting.
		Name:  "canvas",
		Guard: "typeof HTMLCanvasElement !== 'undefined' && typeof CanvasRenderingContext2D !== 'undefined'",
		Body: `
var perturb = function (data) {
  for (var i = 3; i < data.length; i += 4) {
    if (srand() < 0.05) { data[i] = data[i] ^ 1; }
  }
};
var realGetImageData = CanvasRenderingContext2D.prototype.getImageData;
CanvasRenderingContext2D.prototype.getImageData = function () {
  var img = realGetImageData.apply(this, arguments);
  if (img && img.data) { perturb(img.data); }
  return img;
};
var realToDataURL = HTMLCanvasElement.prototype.toDataURL;
HTMLCanvasElement.prototype.toDataURL = function () {
  var ctx2d = this.getContext && this.getContext('2d');
  if (ctx2d) {
    var img = realGetImageData.call(ctx2d, 0, 0, this.width || 1, this.height || 1);
    if (img && img.data) { perturb(img.data); ctx2d.putImageData(img, 0, 0); }
  }
  return realToDataURL.apply(this, arguments);
};`,
	},
	{
		// 37445/37446 are UNMASKED_VENDOR_WEBGL / UNMASKED_RENDERER_WEBGL.
		// Only those two parameter codes are overridden.
		Name:  "webgl",
		Guard: "typeof WebGLRenderingContext !== 'undefined' || typeof WebGL2RenderingContext !== 'undefined'",
		Body: `
var patchGL = function (proto) {
  if (!proto || !proto.getParameter) { return; }
  var real = proto.getParameter;
  proto.getParameter = function (param) {
    if (param === 37445) { return {{js .WebGLVendor}}; }
    if (param === 37446) { return {{js .WebGLRenderer}}; }
    return real.apply(this, arguments);
  };
};
if (typeof WebGLRenderingContext !== 'undefined') { patchGL(WebGLRenderingContext.prototype); }
if (typeof WebGL2RenderingContext !== 'undefined') { patchGL(WebGL2RenderingContext.prototype); }`,
	},
	{
		Name:  "webrtc",
		Guard: "typeof RTCPeerConnection !== 'undefined'",
		Body: `
var stripSDP = function (desc) {
  if (desc && typeof desc.sdp === 'string') {
    var lines = desc.sdp.split('\r\n').filter(function (l) {
      return l.indexOf('a=candidate:') !== 0;
    });
    try { desc.sdp = lines.join('\r\n'); } catch (e) {}
  }
  return desc;
};
var proto = RTCPeerConnection.prototype;
['createOffer', 'createAnswer'].forEach(function (name) {
  var real = proto[name];
  if (!real) { return; }
  proto[name] = function () {
    return real.apply(this, arguments).then(stripSDP);
  };
});
def(proto, 'localDescription', function () { return null; });`,
	},
}

// Catalog returns the patch descriptors in application order, exposed for
// consistency checks and tests.
func Catalog() []Patch {
	out := make([]Patch, len(catalog))
	copy(out, catalog)
	return out
}
