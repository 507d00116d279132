// Package arbor is the core of a retained-mode scene-graph compositor.
//
// Client processes describe their UI as a tree of render nodes and send
// changes as [Transaction] values. A single [MainLoop] goroutine applies
// them once per vertical sync, animates, renders and hands the result to a
// display device through the [HardwareThread].
//
// # Quick start
//
// A loop needs a [Context]; everything else has a default:
//
//	ctx := arbor.NewContext()
//	loop := arbor.NewMainLoop(ctx, arbor.WithRenderMode(arbor.RenderModeUnified))
//	go loop.Run(runCtx)
//
//	tx := arbor.NewTransaction(pid, uint64(time.Now().UnixNano()))
//	tx.AddCommand(&arbor.BaseNodeCreate{ID: id}, id, arbor.FollowNone)
//	loop.RecvTransaction(tx)
//
// To show frames, wrap a [DeviceFuncs] table with [NewDevice] and pass a
// hardware thread built on [NewHdiBackend]. The ebitendevice package
// provides a table backed by an ebiten window.
//
// # Render nodes
//
// Every node is a [RenderNode] of one [NodeKind]: base, canvas, surface,
// proxy, root or display. Nodes live in the context's [NodeMap] and are
// addressed by [NodeID], a (pid, local id) pair. Displays hang below the
// context's global root; the rest of the tree hangs below displays.
//
// A node's visual state is its [Properties], written only by the
// [Modifier] values attached to it. Animations drive a modifier's value
// from the frame timestamp.
//
// # Surfaces and buffers
//
// Surface nodes consume buffers from a [BufferQueue] fed by the client.
// Commands sent with [FollowToSelf] or [FollowToParent] wait until the
// surface has consumed a buffer at least as new as the transaction, so
// geometry and content change in the same frame.
//
// # Composition
//
// In [RenderModeDivided] every surface becomes its own display layer. In
// [RenderModeUnified] the tree is drawn in software into one framebuffer
// per display, and surfaces the device can scan out directly go above it
// as layers. Damage is tracked per surface and display by a
// [DirtyRegionManager]; with partial rendering a clean display is not
// redrawn.
//
// After each frame the loop computes which part of every surface is
// visible and tells [OcclusionListener] callbacks when that changes.
//
// # Logging
//
// Arbor logs through [log/slog]. Nothing is logged until [SetLogger] is
// called.
package arbor
