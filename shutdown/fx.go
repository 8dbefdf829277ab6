package shutdown

import (
	"go.uber.org/fx"
)

/* ========================================================================
 * Shutdown FX Module - 优雅关停 FX 模块
 * ======================================================================== */

// Module FX 模块
var Module = fx.Module("shutdown",
	fx.Provide(NewManager),
)
