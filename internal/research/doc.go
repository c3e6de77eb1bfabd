// Package research is the REST side of the research backend: PDF upload,
// starting a research run and the server status summary.
package research
