package shader

// WGSL built-ins. The prologue supplies the uniforms and channels.

const fullscreenVertexWGSL = `@vertex
fn main(@builtin(vertex_index) vertexIndex : u32) -> @builtin(position) vec4f {
  let pos = array<vec2f, 6>(
    vec2f(-1.0, -1.0), vec2f( 1.0, -1.0), vec2f(-1.0,  1.0),
    vec2f(-1.0,  1.0), vec2f( 1.0, -1.0), vec2f( 1.0,  1.0),
  );
  return vec4f(pos[vertexIndex], 0.0, 1.0);
}
`

const defaultFragmentWGSL = `@fragment
fn main(@builtin(position) fragCoord : vec4f) -> @location(0) vec4f {
  let uv    = fragCoord.xy / uniforms.resolution;
  let pulse = 1.0 - uniforms.quarterPhase * 0.3;
  let col   = 0.5 + 0.5 * cos(uniforms.time + uv.xyx + vec3f(0.0, 2.0, 4.0));
  return vec4f(col * pulse, 1.0);
}
`

const blitFragmentWGSL = `@fragment
fn main(@builtin(position) pos : vec4f) -> @location(0) vec4f {
  let uv = pos.xy / uniforms.resolution;
  return textureSample(iChannel0, iChannel0Sampler, vec2f(uv.x, 1.0 - uv.y));
}
`

const cubeVertexWGSL = `@vertex
fn main(@builtin(vertex_index) idx : u32) -> @builtin(position) vec4f {
  var p = array<vec3f, 36>(
    vec3f(-1.0,-1.0,-1.0), vec3f( 1.0,-1.0,-1.0), vec3f(-1.0, 1.0,-1.0),
    vec3f(-1.0, 1.0,-1.0), vec3f( 1.0,-1.0,-1.0), vec3f( 1.0, 1.0,-1.0),
    vec3f( 1.0,-1.0, 1.0), vec3f(-1.0,-1.0, 1.0), vec3f( 1.0, 1.0, 1.0),
    vec3f( 1.0, 1.0, 1.0), vec3f(-1.0,-1.0, 1.0), vec3f(-1.0, 1.0, 1.0),
    vec3f(-1.0,-1.0, 1.0), vec3f(-1.0,-1.0,-1.0), vec3f(-1.0, 1.0, 1.0),
    vec3f(-1.0, 1.0, 1.0), vec3f(-1.0,-1.0,-1.0), vec3f(-1.0, 1.0,-1.0),
    vec3f( 1.0,-1.0,-1.0), vec3f( 1.0,-1.0, 1.0), vec3f( 1.0, 1.0,-1.0),
    vec3f( 1.0, 1.0,-1.0), vec3f( 1.0,-1.0, 1.0), vec3f( 1.0, 1.0, 1.0),
    vec3f(-1.0,-1.0, 1.0), vec3f( 1.0,-1.0, 1.0), vec3f(-1.0,-1.0,-1.0),
    vec3f(-1.0,-1.0,-1.0), vec3f( 1.0,-1.0, 1.0), vec3f( 1.0,-1.0,-1.0),
    vec3f(-1.0, 1.0,-1.0), vec3f( 1.0, 1.0,-1.0), vec3f(-1.0, 1.0, 1.0),
    vec3f(-1.0, 1.0, 1.0), vec3f( 1.0, 1.0,-1.0), vec3f( 1.0, 1.0, 1.0),
  );

  let angle = uniforms.time * 0.5;
  let c = cos(angle);
  let s = sin(angle);
  let rotY = mat3x3f(
    vec3f( c,   0.0, s  ),
    vec3f( 0.0, 1.0, 0.0),
    vec3f(-s,   0.0, c  ),
  );
  let worldPos = rotY * p[idx];

  let aspect = uniforms.resolution.x / uniforms.resolution.y;
  let viewZ  = worldPos.z + 4.0;
  let fov    = 1.732;
  let clipX  = worldPos.x * fov / (viewZ * aspect);
  let clipY  = worldPos.y * fov / viewZ;
  let clipZ  = (viewZ - 0.1) / (100.0 - 0.1);
  return vec4f(clipX, clipY, clipZ, 1.0);
}
`

const sphereVertexWGSL = `const PI = 3.14159265358979;
const SLICES = 32u;
const STACKS = 16u;

@vertex
fn main(@builtin(vertex_index) idx : u32) -> @builtin(position) vec4f {
  let quadIdx = idx / 6u;
  let vertInQ = idx % 6u;
  let stack   = quadIdx / SLICES;
  let slice   = quadIdx % SLICES;

  let phi0   = f32(stack)      / f32(STACKS) * PI;
  let phi1   = f32(stack + 1u) / f32(STACKS) * PI;
  let theta0 = f32(slice)      / f32(SLICES) * 2.0 * PI;
  let theta1 = f32(slice + 1u) / f32(SLICES) * 2.0 * PI;

  let c0 = vec3f(sin(phi0)*cos(theta0), cos(phi0), sin(phi0)*sin(theta0));
  let c1 = vec3f(sin(phi0)*cos(theta1), cos(phi0), sin(phi0)*sin(theta1));
  let c2 = vec3f(sin(phi1)*cos(theta0), cos(phi1), sin(phi1)*sin(theta0));
  let c3 = vec3f(sin(phi1)*cos(theta1), cos(phi1), sin(phi1)*sin(theta1));

  var worldPos: vec3f;
  switch (vertInQ) {
    case 0u: { worldPos = c0; }
    case 1u: { worldPos = c1; }
    case 2u: { worldPos = c2; }
    case 3u: { worldPos = c2; }
    case 4u: { worldPos = c1; }
    default: { worldPos = c3; }
  }

  let angle = uniforms.time * 0.4;
  let c = cos(angle);
  let s = sin(angle);
  let rotY = mat3x3f(
    vec3f( c,   0.0, s  ),
    vec3f( 0.0, 1.0, 0.0),
    vec3f(-s,   0.0, c  ),
  );
  worldPos = rotY * worldPos;

  let aspect = uniforms.resolution.x / uniforms.resolution.y;
  let viewZ  = worldPos.z + 3.0;
  let fov    = 1.732;
  let clipX  = worldPos.x * fov / (viewZ * aspect);
  let clipY  = worldPos.y * fov / viewZ;
  let clipZ  = (viewZ - 0.1) / (100.0 - 0.1);
  return vec4f(clipX, clipY, clipZ, 1.0);
}
`
