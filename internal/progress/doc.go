// Package progress defines the wire vocabulary of the research progress stream.
//
// # Frames
//
// The backend pushes one JSON object per WebSocket text frame:
//
//	{
//	  "agent": "Researcher",
//	  "status": "done",
//	  "message": "Research completed (4210 chars)",
//	  "timestamp": "2025-01-07T10:31:00",
//	  "iteration": 2,
//	  "details": {"output_length": 4210}
//	}
//
// Agents are Researcher, Reviewer, Synthesizer and the System pseudo-agent.
// Unknown agent names decode without error so newer servers stay compatible;
// the workflow reducer ignores them.
//
// # Heartbeats
//
// Frames whose status is ping or pong are keepalives. Status.IsHeartbeat
// reports them and the transport drops them before fan-out.
//
// # Details
//
// Details is an open map. Typed accessors (FinalReport, ReportContent,
// DetailString) return "" when a key is absent or not a string.
package progress
