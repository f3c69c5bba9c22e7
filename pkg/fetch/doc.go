// Package fetch turns a URL into the rendered page content that grounds a
// chat session.
//
// PlaywrightFetcher drives a shared headless Chromium through Playwright so
// JavaScript-heavy pages are captured after they render. Each fetch runs in
// an isolated browser context that is closed as soon as the content has been
// read.
//
// URLGuard screens URLs before they reach a browser, and Cleaning optionally
// reduces the captured markup with CleanHTML before it is stored.
package fetch
