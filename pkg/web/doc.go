// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package web contains HTTP request and client configurations shared by the
HTTP-speaking exporters. HTTPConfig embeds both of them, and it's the
structure intended to be used as part of an exporter's configuration.
It allows to have the same set of user configurable options across all
exporters.
*/
package web
