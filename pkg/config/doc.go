// Package config loads labdeck's YAML configuration file.
//
// Every field has a default (see Default), so a file only needs the values
// it changes:
//
//	listen: ":9000"
//	dataDir: /var/lib/labdeck
//	secretKey: change-me
//	log:
//	  level: debug
//	  json: true
//	poll:
//	  metricsInterval: 10s
package config
