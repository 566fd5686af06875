//go:build chartdebug

package tfagg

const debugChecks = true
