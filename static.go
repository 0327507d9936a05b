package main

import _ "embed"

// indexHTML is the embedded main application HTML template.
//
//go:embed web/index.html
var indexHTML string

// appJS is the embedded JavaScript application code.
//
//go:embed web/app.js
var appJS string
