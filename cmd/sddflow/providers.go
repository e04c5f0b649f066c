package main

// Runtime adapters register themselves with the runtime registry on import.
import (
	_ "github.com/Strob0t/sddflow/internal/adapter/claudecode"
	_ "github.com/Strob0t/sddflow/internal/adapter/shell"
)
