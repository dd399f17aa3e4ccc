// Package config loads the optional packwiz-deploy.yaml settings file.
//
// Every field has a default, so a project without the file deploys with the
// stock tool names, directories and timings.
package config
