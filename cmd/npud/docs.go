package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           npud API
// @version         1.0
// @description     OpenAI-compatible HTTP API for NPU-resident model inference.
//
// @contact.name   npud maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
