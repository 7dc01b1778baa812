// Package casedir knows the on-disk layout of a solver case directory.
//
// A case directory looks like this:
//
//	pitzDaily/
//	├── 0/                 initial conditions (fields, <field>.org templates)
//	├── 0.5/ 100/ ...      time directories written by the solver
//	├── constant/          physical properties, constant/polyMesh after meshing
//	├── system/            controlDict, blockMeshDict, decomposeParDict, ...
//	├── processor0/ ...    per-partition data after decomposition
//	├── log.blockMesh ...  per-utility logs written by the launcher
//	└── pitzDaily.foam     empty marker opened by the visualization tool
//
// The package validates cases, lists time and processor directories,
// builds the cleanup steps that reset a case, and clones tutorial cases
// into fresh run directories. Path resolution used by the step actions
// also lives here, so that no action can reach outside its case.
package casedir
