// Package config loads env-tagged configuration structs, preloading an
// optional .env file via godotenv and parsing with caarlos0/env. Parsed
// configs are cached per type so packages can load their own Config without
// coordinating.
package config
