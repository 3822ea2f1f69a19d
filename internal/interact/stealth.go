package interact

// fingerprintScript masks the most common automation tells: the webdriver
// flag, empty plugin and language lists, and the headless Chrome permissions
// quirk. Registered as a new-document script so every navigation commits a
// document that already carries the overrides.
const fingerprintScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', {
  get: () => [1, 2, 3, 4, 5],
});
Object.defineProperty(navigator, 'languages', {
  get: () => ['en-US', 'en'],
});
window.chrome = window.chrome || { runtime: {} };
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
  parameters.name === 'notifications'
    ? Promise.resolve({ state: Notification.permission })
    : originalQuery(parameters)
);
`

// warmUpScrollScript nudges the viewport the way a reader would.
const warmUpScrollScript = `window.scrollBy(0, window.innerHeight / 2);`

// scrollBackScript drifts part of the way back up.
const scrollBackScript = `window.scrollBy(0, -200);`
